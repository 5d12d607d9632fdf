package bridge

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/net/netutil"
)

// inspectorWriteTimeout bounds a single frame write to a slow client.
const inspectorWriteTimeout = 5 * time.Second

// maxInspectorClients caps concurrent inspector connections.
const maxInspectorClients = 4

// inspectorEvent is one frame on the inspector stream.
type inspectorEvent struct {
	Kind       string            `json:"kind"` // "diagnostic" or "rejections"
	Diagnostic *DiagnosticRecord `json:"diagnostic,omitempty"`
	Rejections map[uint64]string `json:"rejections,omitempty"`
	Time       time.Time         `json:"time"`
}

// Inspector streams diagnostic records and unhandled-rejection snapshots
// to attached websocket clients. It implements DiagnosticSink; install it
// on a context with SetDiagnosticSink. Frames to slow or gone clients are
// dropped, never blocking the engine turn.
type Inspector struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

// NewInspector returns an inspector with no clients attached.
func NewInspector() *Inspector {
	return &Inspector{clients: make(map[*websocket.Conn]struct{})}
}

// Diagnostic broadcasts one encoded diagnostic to every attached client.
func (i *Inspector) Diagnostic(rec DiagnosticRecord) {
	i.broadcast(inspectorEvent{Kind: "diagnostic", Diagnostic: &rec, Time: time.Now()})
}

// PublishRejections broadcasts an unhandled-rejection snapshot, as
// returned by ExecutionContext.UnhandledRejections.
func (i *Inspector) PublishRejections(snapshot map[uint64]string) {
	i.broadcast(inspectorEvent{Kind: "rejections", Rejections: snapshot, Time: time.Now()})
}

func (i *Inspector) broadcast(ev inspectorEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("bridge: encoding inspector event: %v", err)
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for conn := range i.clients {
		ctx, cancel := context.WithTimeout(context.Background(), inspectorWriteTimeout)
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			delete(i.clients, conn)
			_ = conn.Close(websocket.StatusGoingAway, "write failed")
		}
		cancel()
	}
}

// ServeHTTP upgrades the request to a websocket and attaches the client
// until it disconnects or the inspector shuts down.
func (i *Inspector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("bridge: inspector accept: %v", err)
		return
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "inspector shut down")
		return
	}
	i.clients[conn] = struct{}{}
	i.mu.Unlock()

	// Clients only listen; reading drains control frames and detects
	// disconnects.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	i.mu.Lock()
	delete(i.clients, conn)
	i.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// Serve runs an HTTP server for the inspector on lis, limited to
// maxInspectorClients concurrent connections. Blocks until the listener
// closes.
func (i *Inspector) Serve(lis net.Listener) error {
	limited := netutil.LimitListener(lis, maxInspectorClients)
	srv := &http.Server{Handler: i}
	return srv.Serve(limited)
}

// Shutdown detaches every client.
func (i *Inspector) Shutdown() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	for conn := range i.clients {
		_ = conn.Close(websocket.StatusGoingAway, "inspector shut down")
		delete(i.clients, conn)
	}
}
