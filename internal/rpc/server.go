package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/mod/semver"

	"github.com/untoldecay/MnemoLog/internal/engine"
	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/types"
)

// ServerVersion is stamped by the daemon from the CLI version before the
// server starts.
var ServerVersion = "0.0.0"

const (
	defaultMaxConns       = 100
	defaultRequestTimeout = 30 * time.Second
	mutationBufferMax     = 100
	schedulerInterval     = time.Second
	maxRequestBytes       = 4 << 20
)

// Server answers mn RPC requests over a Unix socket and drives the async
// ingestion scheduler.
type Server struct {
	socketPath string
	dbPath     string
	store      storage.Storage
	engine     *engine.Engine
	logger     *log.Logger

	listener net.Listener
	mu       sync.RWMutex
	shutdown bool

	shutdownChan chan struct{}
	stopOnce     sync.Once
	readyChan    chan struct{}
	startTime    time.Time

	maxConns       int
	connSemaphore  chan struct{}
	activeConns    int32
	requestTimeout time.Duration

	// Bounded ring of recent mutations for pollers.
	recentMu        sync.RWMutex
	recentMutations []MutationEvent
}

// NewServer wires a server and its engine over the store. Engine options
// are extended with the server's mutation recorder.
func NewServer(socketPath, dbPath string, store storage.Storage, logger *log.Logger, opts ...engine.Option) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	maxConns := defaultMaxConns
	if env := os.Getenv("MN_DAEMON_MAX_CONNS"); env != "" {
		var n int
		if _, err := fmt.Sscanf(env, "%d", &n); err == nil && n > 0 {
			maxConns = n
		}
	}
	requestTimeout := defaultRequestTimeout
	if env := os.Getenv("MN_DAEMON_REQUEST_TIMEOUT"); env != "" {
		if d, err := time.ParseDuration(env); err == nil && d > 0 {
			requestTimeout = d
		}
	}

	s := &Server{
		socketPath:     socketPath,
		dbPath:         dbPath,
		store:          store,
		logger:         logger,
		shutdownChan:   make(chan struct{}),
		readyChan:      make(chan struct{}),
		startTime:      time.Now(),
		maxConns:       maxConns,
		connSemaphore:  make(chan struct{}, maxConns),
		requestTimeout: requestTimeout,
	}
	opts = append(opts, engine.WithNotifier(s.recordMutation))
	s.engine = engine.New(store, opts...)
	return s
}

// Engine exposes the wired engine, mainly for in-process callers and
// tests.
func (s *Server) Engine() *engine.Engine { return s.engine }

// Ready is closed once the listener is accepting.
func (s *Server) Ready() <-chan struct{} { return s.readyChan }

// recordMutation appends committed-mutation URIs to the polling ring.
func (s *Server) recordMutation(uris ...string) {
	now := time.Now().UnixMilli()
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	for _, uri := range uris {
		s.recentMutations = append(s.recentMutations, MutationEvent{URI: uri, Timestamp: now})
	}
	if over := len(s.recentMutations) - mutationBufferMax; over > 0 {
		s.recentMutations = s.recentMutations[over:]
	}
}

// RecentMutations returns buffered events newer than sinceMillis.
func (s *Server) RecentMutations(sinceMillis int64) []MutationEvent {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()
	var out []MutationEvent
	for _, m := range s.recentMutations {
		if m.Timestamp > sinceMillis {
			out = append(out, m)
		}
	}
	return out
}

// Start listens on the socket and serves until Stop. It also runs the
// ingestion scheduler. Blocks until shutdown completes.
func (s *Server) Start() error {
	if err := EnsureSocketDir(s.socketPath); err != nil {
		return fmt.Errorf("failed to prepare socket dir: %w", err)
	}
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	close(s.readyChan)
	s.logger.Printf("listening on %s", s.socketPath)

	go s.runScheduler()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdownChan:
				_ = CleanupSocket(s.socketPath)
				return nil
			default:
			}
			s.logger.Printf("accept error: %v", err)
			continue
		}

		select {
		case s.connSemaphore <- struct{}{}:
			atomic.AddInt32(&s.activeConns, 1)
			go func() {
				defer func() {
					<-s.connSemaphore
					atomic.AddInt32(&s.activeConns, -1)
				}()
				s.serveConn(conn)
			}()
		default:
			// At capacity: refuse rather than queue.
			s.writeResponse(conn, Response{
				Success: false,
				Error: &ErrorInfo{
					Kind:      string(types.KindDependency),
					Message:   "daemon connection limit reached",
					Retryable: true,
				},
			})
			_ = conn.Close()
		}
	}
}

// Stop shuts the server down. Safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.shutdown = true
		listener := s.listener
		s.mu.Unlock()
		close(s.shutdownChan)
		if listener != nil {
			_ = listener.Close()
		}
	})
}

// runScheduler drains pending async ingestion tasks, one batch per task
// per tick.
func (s *Server) runScheduler() {
	ticker := time.NewTicker(schedulerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdownChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
			ids, err := s.engine.PendingIngestionTasks(ctx)
			if err != nil {
				s.logger.Printf("scheduler: failed to list tasks: %v", err)
				cancel()
				continue
			}
			for _, id := range ids {
				remaining, err := s.engine.ProcessIngestionBatch(ctx, id)
				if err != nil {
					s.logger.Printf("scheduler: task %s failed: %v", id, err)
					continue
				}
				if remaining > 0 {
					s.logger.Printf("scheduler: task %s has %d chunks remaining", id, remaining)
				}
			}
			cancel()
		}
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxRequestBytes)
	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			s.writeResponse(conn, Response{
				Success: false,
				Error: &ErrorInfo{
					Kind:    string(types.KindValidation),
					Message: fmt.Sprintf("malformed request: %v", err),
				},
			})
			continue
		}

		resp := s.handle(&req)
		resp.RequestID = req.RequestID
		s.writeResponse(conn, resp)

		if req.Operation == OpShutdown {
			s.Stop()
			return
		}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Printf("failed to encode response: %v", err)
		return
	}
	payload = append(payload, '\n')
	if _, err := conn.Write(payload); err != nil {
		s.logger.Printf("failed to write response: %v", err)
	}
}

// handle validates the version handshake and dispatches one request.
func (s *Server) handle(req *Request) Response {
	if req.ClientVersion != "" && !compatibleVersions(req.ClientVersion, ServerVersion) {
		return failf(types.Validationf("client %s is not compatible with daemon %s; restart the daemon",
			req.ClientVersion, ServerVersion))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()

	switch req.Operation {
	case OpPing:
		return okText("pong", "", nil)
	case OpStatus:
		return s.handleStatus(ctx)
	case OpShutdown:
		return okText("daemon stopping", "", nil)
	case OpStore:
		return s.handleStore(ctx, req)
	case OpGet:
		return s.handleGet(ctx, req)
	case OpUpdate:
		return s.handleUpdate(ctx, req)
	case OpQuery:
		return s.handleQuery(ctx, req)
	case OpDelete:
		return s.handleDelete(ctx, req)
	case OpRelate:
		return s.handleRelate(ctx, req)
	case OpQueryGraph:
		return s.handleQueryGraph(ctx, req)
	case OpUpdateTriple:
		return s.handleUpdateTriple(ctx, req)
	case OpUpsertTriple:
		return s.handleUpsertTriple(ctx, req)
	case OpResolveConflict:
		return s.handleResolveConflict(ctx, req)
	case OpUpsertEntity:
		return s.handleUpsertEntity(ctx, req)
	case OpResolveEntity:
		return s.handleResolveEntity(ctx, req)
	case OpAddAlias:
		return s.handleAddAlias(ctx, req)
	case OpMergeEntities:
		return s.handleMergeEntities(ctx, req)
	case OpUndo:
		return s.handleUndo(ctx, req)
	case OpHistory:
		return s.handleHistory(ctx, req)
	case OpIngest:
		return s.handleIngest(ctx, req)
	case OpIngestionStatus:
		return s.handleIngestionStatus(ctx, req)
	case OpList:
		return s.handleList(ctx, req)
	case OpGetMutations:
		return s.handleGetMutations(req)
	}
	return failf(types.Validationf("unknown operation %q", req.Operation))
}

// compatibleVersions accepts clients from the same major version.
func compatibleVersions(client, server string) bool {
	cv, sv := "v"+client, "v"+server
	if !semver.IsValid(cv) || !semver.IsValid(sv) {
		return true // unparseable versions never block
	}
	return semver.Major(cv) == semver.Major(sv)
}

func failf(err error) Response {
	return Response{Success: false, Error: errorInfo(err)}
}

// okText builds a success envelope. uri may be empty for operations with
// no single resource.
func okText(text, uri string, data any) Response {
	env := &Envelope{Text: text}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return failf(types.Internalf("failed to encode payload: %v", err))
		}
		env.Resource = &Resource{URI: uri, MediaType: "application/json", Data: raw}
	}
	return Response{Success: true, Data: env}
}
