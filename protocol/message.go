package protocol

// Message is a Request or a Response. The set of implementations is closed.
type Message interface {
	Kind() Kind
	message()
}

// Request is a message sent by a client.
type Request interface {
	Message
	request()
}

// Response is a message sent by the server.
type Response interface {
	Message
	response()
}

// ProtocolVersion is the version announced by Version requests.
const ProtocolVersion uint16 = 1

// ---- requests ----

// Version is an optional handshake announcing the client's protocol version.
type Version struct{ Version uint16 }

type Ping struct{}

type Get struct{ Key string }

// Set stores Value under Key. Expiration is in whole seconds; 0 never expires.
type Set struct {
	Key        string
	Value      []byte
	Expiration uint32
}

type Delete struct{ Key string }

type Clear struct{}

// ---- responses ----

type Pong struct{}

type Ok struct{}

type Value struct{ Data []byte }

type KeyNotFound struct{}

// Error carries a human readable reason for a rejected request.
type Error struct{ Message string }

func (Version) Kind() Kind     { return KindVersion }
func (Ping) Kind() Kind        { return KindPing }
func (Get) Kind() Kind         { return KindGet }
func (Set) Kind() Kind         { return KindSet }
func (Delete) Kind() Kind      { return KindDelete }
func (Clear) Kind() Kind       { return KindClear }
func (Pong) Kind() Kind        { return KindPong }
func (Ok) Kind() Kind          { return KindOk }
func (Value) Kind() Kind       { return KindValue }
func (KeyNotFound) Kind() Kind { return KindKeyNotFound }
func (Error) Kind() Kind       { return KindError }

func (Version) message()     {}
func (Ping) message()        {}
func (Get) message()         {}
func (Set) message()         {}
func (Delete) message()      {}
func (Clear) message()       {}
func (Pong) message()        {}
func (Ok) message()          {}
func (Value) message()       {}
func (KeyNotFound) message() {}
func (Error) message()       {}

func (Version) request() {}
func (Ping) request()    {}
func (Get) request()     {}
func (Set) request()     {}
func (Delete) request()  {}
func (Clear) request()   {}

func (Pong) response()        {}
func (Ok) response()          {}
func (Value) response()       {}
func (KeyNotFound) response() {}
func (Error) response()       {}
