package rsocket

import (
	"fmt"

	"github.com/domsolutions/rsocket/rsocketutils"
)

// Version is the protocol version carried by SETUP and RESUME frames.
type Version struct {
	Major uint16
	Minor uint16
}

// DefaultVersion is the protocol version this package implements.
var DefaultVersion = Version{Major: 1, Minor: 0}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Less reports whether v precedes other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

func (v Version) append(dst []byte) []byte {
	dst = rsocketutils.AppendUint16Bytes(dst, v.Major)
	dst = rsocketutils.AppendUint16Bytes(dst, v.Minor)
	return dst
}

func versionFromBytes(b []byte) Version {
	return Version{
		Major: rsocketutils.BytesToUint16(b),
		Minor: rsocketutils.BytesToUint16(b[2:]),
	}
}
