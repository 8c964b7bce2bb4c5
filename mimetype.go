package rsocket

// DefaultMimeType is the default MIME type for encoding metadata and data.
const DefaultMimeType = "application/binary"

// WellKnownMimeType enumerates the MIME types with a registered compact
// representation.
type WellKnownMimeType int8

const (
	MimeUnparseable WellKnownMimeType = iota - 1
	MimeApplicationAvro
	MimeApplicationCbor
	MimeApplicationGraphql
	MimeApplicationGzip
	MimeApplicationJavascript
	MimeApplicationJSON
	MimeApplicationOctetStream
	MimeApplicationPdf
	MimeApplicationThriftBinary
	MimeApplicationProtobuf
	MimeApplicationXML
	MimeApplicationZip
	MimeAudioAac
	MimeAudioMp3
	MimeAudioMp4
	MimeAudioMpeg
	MimeAudioOgg
	MimeAudioOpus
	MimeImageBmp
	MimeImageGif
	MimeImageJpeg
	MimeImagePng
	MimeImageTiff
	MimeMultipartMixed
	MimeTextCSS
	MimeTextCSV
	MimeTextHTML
	MimeTextPlain
	MimeTextXML
	MimeVideoH264
	MimeVideoH265
	MimeVideoVP8
	MimeMessageMimeType
	MimeMessageAcceptMimeTypes
	MimeMessageAuthentication
	MimeMessageZipkin
	MimeMessageRouting
	MimeMessageCompositeMetadata
)

var mimeTypeNames = map[WellKnownMimeType]string{
	MimeApplicationAvro:          "application/avro",
	MimeApplicationCbor:          "application/cbor",
	MimeApplicationGraphql:       "application/graphql",
	MimeApplicationGzip:          "application/gzip",
	MimeApplicationJavascript:    "application/javascript",
	MimeApplicationJSON:          "application/json",
	MimeApplicationOctetStream:   "application/octet-stream",
	MimeApplicationPdf:           "application/pdf",
	MimeApplicationThriftBinary:  "application/vnd.apache.thrift.binary",
	MimeApplicationProtobuf:      "application/vnd.google.protobuf",
	MimeApplicationXML:           "application/xml",
	MimeApplicationZip:           "application/zip",
	MimeAudioAac:                 "audio/aac",
	MimeAudioMp3:                 "audio/mp3",
	MimeAudioMp4:                 "audio/mp4",
	MimeAudioMpeg:                "audio/mpeg",
	MimeAudioOgg:                 "audio/ogg",
	MimeAudioOpus:                "audio/opus",
	MimeImageBmp:                 "image/bmp",
	MimeImageGif:                 "image/gif",
	MimeImageJpeg:                "image/jpeg",
	MimeImagePng:                 "image/png",
	MimeImageTiff:                "image/tiff",
	MimeMultipartMixed:           "multipart/mixed",
	MimeTextCSS:                  "text/css",
	MimeTextCSV:                  "text/csv",
	MimeTextHTML:                 "text/html",
	MimeTextPlain:                "text/plain",
	MimeTextXML:                  "text/xml",
	MimeVideoH264:                "video/H264",
	MimeVideoH265:                "video/H265",
	MimeVideoVP8:                 "video/VP8",
	MimeMessageMimeType:          "message/x.rsocket.mime.type.v0",
	MimeMessageAcceptMimeTypes:   "message/x.rsocket.accept.mime.types.v0",
	MimeMessageAuthentication:    "message/x.rsocket.authentication.v0",
	MimeMessageZipkin:            "message/x.rsocket.tracing.zipkin.v0",
	MimeMessageRouting:           "message/x.rsocket.routing.v0",
	MimeMessageCompositeMetadata: "message/x.rsocket.composite.metadata.v0",
}

var mimeTypeValues = func() map[string]WellKnownMimeType {
	m := make(map[string]WellKnownMimeType, len(mimeTypeNames))
	for t, name := range mimeTypeNames {
		m[name] = t
	}
	return m
}()

// ParseMimeType returns the well-known MIME type for the given string, or
// MimeUnparseable if it is not registered.
func ParseMimeType(s string) WellKnownMimeType {
	if t, ok := mimeTypeValues[s]; ok {
		return t
	}
	return MimeUnparseable
}

func (t WellKnownMimeType) String() string {
	if name, ok := mimeTypeNames[t]; ok {
		return name
	}
	return ""
}
