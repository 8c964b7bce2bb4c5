package rsocket

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fnHandler is a test responder built from function fields; unset ones fall
// back to DummyHandler.
type fnHandler struct {
	rr      func(p Payload) *Mono
	stream  func(p Payload) *Flux
	channel func(in *Flux) *Flux
	fnf     func(p Payload) error
	meta    func(metadata []byte) error
}

func (h *fnHandler) RequestResponse(p Payload) *Mono {
	if h.rr == nil {
		return DummyHandler{}.RequestResponse(p)
	}
	return h.rr(p)
}

func (h *fnHandler) RequestStream(p Payload) *Flux {
	if h.stream == nil {
		return DummyHandler{}.RequestStream(p)
	}
	return h.stream(p)
}

func (h *fnHandler) RequestChannel(in *Flux) *Flux {
	if h.channel == nil {
		return DummyHandler{}.RequestChannel(in)
	}
	return h.channel(in)
}

func (h *fnHandler) FireAndForget(p Payload) error {
	if h.fnf == nil {
		return DummyHandler{}.FireAndForget(p)
	}
	return h.fnf(p)
}

func (h *fnHandler) MetadataPush(metadata []byte) error {
	if h.meta == nil {
		return DummyHandler{}.MetadataPush(metadata)
	}
	return h.meta(metadata)
}

func newTestPair(t *testing.T, clientCfg, serverCfg Config) (*Conn, *Conn) {
	t.Helper()

	cc, sc := net.Pipe()
	client := NewConn(NewTCPTransport(cc), RoleClient, clientCfg)
	server := NewConn(NewTCPTransport(sc), RoleServer, serverCfg)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = server.Handshake() }()
	go func() { defer wg.Done(); errs[1] = client.Handshake() }()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	t.Cleanup(func() {
		client.close(nil)
		server.close(nil)
	})

	return client, server
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRequestResponseHappyPath(t *testing.T) {
	serverCfg := Config{Handler: &fnHandler{
		rr: func(p Payload) *Mono {
			require.Equal(t, "m", string(p.Metadata()))
			require.Equal(t, "d", string(p.Data()))
			return MonoOf(NewPayload([]byte("m2"), []byte("d2")))
		},
	}}

	client, server := newTestPair(t, Config{}, serverCfg)

	res, err := client.RequestResponse(NewPayload([]byte("m"), []byte("d"))).Get()
	require.NoError(t, err)
	require.Equal(t, "m2", string(res.Metadata()))
	require.Equal(t, "d2", string(res.Data()))

	waitFor(t, "streams drained", func() bool {
		return client.streams.Len() == 0 && server.streams.Len() == 0
	})
}

func TestRequestStreamWithCredit(t *testing.T) {
	serverCfg := Config{Handler: &fnHandler{
		stream: func(p Payload) *Flux {
			require.Equal(t, "q", string(p.Data()))
			f, sink := NewFlux()
			go func() {
				for _, s := range []string{"a", "b", "c"} {
					if err := sink.Next(DataPayload([]byte(s))); err != nil {
						return
					}
				}
				sink.Complete()
			}()
			return f
		},
	}}

	client, _ := newTestPair(t, Config{}, serverCfg)

	f := client.RequestStream(DataPayload([]byte("q")))

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			p, ok := f.Next()
			if !ok {
				return
			}
			mu.Lock()
			got = append(got, string(p.Data()))
			mu.Unlock()
		}
	}()

	f.Request(2)
	waitFor(t, "first two items", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	// No credit left: the third item must not arrive on its own.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{"a", "b"}, got)
	mu.Unlock()

	f.Request(1)
	<-done

	require.NoError(t, f.Err())
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRequestStreamCancel(t *testing.T) {
	release := make(chan struct{})
	canceled := make(chan error, 1)

	serverCfg := Config{Handler: &fnHandler{
		stream: func(p Payload) *Flux {
			f, sink := NewFlux()
			go func() {
				_ = sink.Next(DataPayload([]byte("x")))
				<-release
				canceled <- sink.Next(DataPayload([]byte("y")))
			}()
			return f
		},
	}}

	client, server := newTestPair(t, Config{}, serverCfg)

	f := client.RequestStream(DataPayload([]byte("q")))
	f.Request(10)

	p, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, "x", string(p.Data()))

	f.Cancel()
	require.ErrorIs(t, f.Err(), NewError(CodeCanceled, ""))

	waitFor(t, "server stream teardown", func() bool { return server.streams.Len() == 0 })
	waitFor(t, "client stream teardown", func() bool { return client.streams.Len() == 0 })

	// The responder-side producer learns about the cancellation.
	close(release)
	require.Error(t, <-canceled)
}

func TestFireAndForgetDelivery(t *testing.T) {
	got := make(chan string, 1)
	serverCfg := Config{Handler: &fnHandler{
		fnf: func(p Payload) error {
			got <- string(p.Data())
			return nil
		},
	}}

	client, server := newTestPair(t, Config{}, serverCfg)

	require.NoError(t, client.FireAndForget(DataPayload([]byte("once"))))

	select {
	case s := <-got:
		require.Equal(t, "once", s)
	case <-time.After(2 * time.Second):
		t.Fatal("fire-and-forget not delivered")
	}

	require.Zero(t, client.streams.Len())
	require.Zero(t, server.streams.Len())
}

func TestMetadataPushDelivery(t *testing.T) {
	got := make(chan []byte, 1)
	serverCfg := Config{Handler: &fnHandler{
		meta: func(metadata []byte) error {
			got <- metadata
			return nil
		},
	}}

	client, _ := newTestPair(t, Config{}, serverCfg)

	require.NoError(t, client.MetadataPush([]byte("routing")))

	select {
	case m := <-got:
		require.Equal(t, "routing", string(m))
	case <-time.After(2 * time.Second):
		t.Fatal("metadata push not delivered")
	}
}

func TestRequestChannelEcho(t *testing.T) {
	serverCfg := Config{Handler: &fnHandler{
		channel: func(in *Flux) *Flux {
			out, sink := NewFlux()
			go func() {
				for {
					p, ok := in.Next()
					if !ok {
						break
					}
					if err := sink.Next(DataPayload(append([]byte("echo:"), p.Data()...))); err != nil {
						return
					}
				}
				sink.Complete()
			}()
			return out
		},
	}}

	client, _ := newTestPair(t, Config{}, serverCfg)

	in, sink := NewFlux()
	go func() {
		for i := 0; i < 3; i++ {
			require.NoError(t, sink.Next(DataPayload([]byte(fmt.Sprintf("%d", i)))))
		}
		sink.Complete()
	}()

	out := client.RequestChannel(in)
	out.Request(10)

	var got []string
	for {
		p, ok := out.Next()
		if !ok {
			break
		}
		got = append(got, string(p.Data()))
	}

	require.NoError(t, out.Err())
	require.Equal(t, []string{"echo:0", "echo:1", "echo:2"}, got)
}

func TestDummyHandlerRejects(t *testing.T) {
	client, _ := newTestPair(t, Config{}, Config{})

	_, err := client.RequestResponse(DataPayload([]byte("?"))).Get()
	require.ErrorIs(t, err, NewError(CodeApplicationError, ""))
	require.Contains(t, err.Error(), "no handler")
}

func TestHandlerPanicBecomesApplicationError(t *testing.T) {
	serverCfg := Config{Handler: &fnHandler{
		rr: func(p Payload) *Mono {
			panic("kaboom")
		},
	}}

	client, _ := newTestPair(t, Config{}, serverCfg)

	_, err := client.RequestResponse(DataPayload([]byte("?"))).Get()
	require.ErrorIs(t, err, NewError(CodeApplicationError, ""))
	require.Contains(t, err.Error(), "kaboom")
}

func TestFragmentedRequestResponse(t *testing.T) {
	big := NewPayload([]byte("metadata"), []byte("data payload"))

	serverCfg := Config{
		ChunkSize: 4,
		Handler: &fnHandler{
			rr: func(p Payload) *Mono {
				// The fragmented request reassembles before the handler
				// sees it.
				require.Equal(t, "metadata", string(p.Metadata()))
				require.Equal(t, "data payload", string(p.Data()))
				return MonoOf(p)
			},
		},
	}

	client, _ := newTestPair(t, Config{ChunkSize: 4}, serverCfg)

	res, err := client.RequestResponse(big).Get()
	require.NoError(t, err)
	require.Equal(t, "metadata", string(res.Metadata()))
	require.Equal(t, "data payload", string(res.Data()))
}

func TestLeaseAdmission(t *testing.T) {
	serverCfg := Config{Handler: &fnHandler{
		rr: func(p Payload) *Mono { return MonoOf(DataPayload([]byte("ok"))) },
	}}

	client, server := newTestPair(t, Config{EnableLease: true}, serverCfg)

	// No lease yet: rejected locally, nothing on the wire.
	_, err := client.RequestResponse(DataPayload([]byte("early"))).Get()
	require.ErrorIs(t, err, NewError(CodeRejected, ""))

	require.NoError(t, server.GrantLease(time.Second, 2, nil))
	waitFor(t, "lease grant", func() bool {
		client.lease.mu.Lock()
		defer client.lease.mu.Unlock()
		return client.lease.counter != nil
	})

	for i := 0; i < 2; i++ {
		_, err := client.RequestResponse(DataPayload([]byte("req"))).Get()
		require.NoError(t, err)
	}

	// Budget exhausted.
	_, err = client.RequestResponse(DataPayload([]byte("extra"))).Get()
	require.ErrorIs(t, err, NewError(CodeRejected, ""))
}

func TestGracefulClose(t *testing.T) {
	client, server := newTestPair(t, Config{}, Config{})

	require.NoError(t, client.Close())
	require.Equal(t, StatusClosed, client.Status())

	waitFor(t, "server close", func() bool { return server.Status() == StatusClosed })
}

func TestConnectionDeathCancelsStreams(t *testing.T) {
	block := make(chan struct{})
	serverCfg := Config{Handler: &fnHandler{
		rr: func(p Payload) *Mono {
			return MonoFunc(func() (Payload, error) {
				<-block
				return Payload{}, nil
			})
		},
	}}

	client, server := newTestPair(t, Config{}, serverCfg)

	m := client.RequestResponse(DataPayload([]byte("slow")))
	waitFor(t, "stream registration", func() bool { return client.streams.Len() == 1 })

	server.close(nil)

	_, err := m.Get()
	require.ErrorIs(t, err, NewError(CodeCanceled, ""))
	require.Zero(t, client.streams.Len())

	close(block)
}

func TestSetupRejected(t *testing.T) {
	cc, sc := net.Pipe()
	client := NewConn(NewTCPTransport(cc), RoleClient, Config{})
	server := NewConn(NewTCPTransport(sc), RoleServer, Config{
		OnSetup: func(setup *Setup) error {
			return NewError(CodeUnsupportedSetup, "bad version")
		},
	})

	errs := make(chan error, 1)
	go func() { errs <- server.Handshake() }()
	require.NoError(t, client.Handshake())
	require.ErrorIs(t, <-errs, NewError(CodeUnsupportedSetup, ""))

	waitFor(t, "client error status", func() bool { return client.Status() == StatusError })
	require.ErrorIs(t, client.LastErr(), NewError(CodeUnsupportedSetup, ""))
}

func TestResumeHandshake(t *testing.T) {
	token := NewResumeToken()

	cc, sc := net.Pipe()
	client := NewConn(NewTCPTransport(cc), RoleClient, Config{})
	server := NewConn(NewTCPTransport(sc), RoleServer, Config{
		Handler: &fnHandler{
			rr: func(p Payload) *Mono { return MonoOf(DataPayload([]byte("resumed"))) },
		},
		OnResume: func(resume *Resume) bool {
			return string(resume.Token()) == string(token)
		},
	})

	errs := make(chan error, 1)
	go func() { errs <- server.Handshake() }()
	require.NoError(t, client.HandshakeResume(token, 0, 0))
	require.NoError(t, <-errs)

	res, err := client.RequestResponse(DataPayload([]byte("?"))).Get()
	require.NoError(t, err)
	require.Equal(t, "resumed", string(res.Data()))

	client.close(nil)
	server.close(nil)
}

func TestResumeRejected(t *testing.T) {
	cc, sc := net.Pipe()
	client := NewConn(NewTCPTransport(cc), RoleClient, Config{})
	server := NewConn(NewTCPTransport(sc), RoleServer, Config{})

	errs := make(chan error, 1)
	go func() { errs <- server.Handshake() }()

	err := client.HandshakeResume([]byte("unknown"), 0, 0)
	require.ErrorIs(t, err, NewError(CodeRejectedResume, ""))
	require.Error(t, <-errs)
}
