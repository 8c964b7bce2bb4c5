package rsocket

// RSocket is the capability offered by both ends of a connection: one method
// per interaction model. A Conn implements it on the requester side; the
// application supplies an implementation for the responder side through
// Config.Handler or Conn.SetHandler.
type RSocket interface {
	// RequestResponse sends a single request and resolves to a single
	// response payload.
	RequestResponse(p Payload) *Mono

	// RequestStream requests a completable stream of payloads. The request
	// frame is sent on the first Request call of the returned Flux, which
	// carries the initial credit.
	RequestStream(p Payload) *Flux

	// RequestChannel opens a bi-directional stream. The first payload of in
	// travels in the request frame; Request on the returned Flux sends it
	// with the initial credit.
	RequestChannel(in *Flux) *Flux

	// FireAndForget sends a single one-way message.
	FireAndForget(p Payload) error

	// MetadataPush pushes connection-scoped metadata.
	MetadataPush(metadata []byte) error
}

// DummyHandler answers every interaction with APPLICATION_ERROR "no
// handler". A connection starts with it until the application installs a
// real responder.
type DummyHandler struct{}

var _ RSocket = DummyHandler{}

func (DummyHandler) RequestResponse(_ Payload) *Mono {
	return MonoErr(NewError(CodeApplicationError, "no handler"))
}

func (DummyHandler) RequestStream(_ Payload) *Flux {
	return FluxErr(NewError(CodeApplicationError, "no handler"))
}

func (DummyHandler) RequestChannel(in *Flux) *Flux {
	in.Cancel()
	return FluxErr(NewError(CodeApplicationError, "no handler"))
}

func (DummyHandler) FireAndForget(_ Payload) error {
	return NewError(CodeApplicationError, "no handler")
}

func (DummyHandler) MetadataPush(_ []byte) error {
	return NewError(CodeApplicationError, "no handler")
}
