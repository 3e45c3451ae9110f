// Package envserver exposes supplier-selection environments over gRPC. Each
// session owns one core.Env; messages are google.protobuf.Struct values.
package envserver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalsfoundry/supplier-sim/core"
	"github.com/signalsfoundry/supplier-sim/internal/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "suppliersim.env.v1.EnvService"

// DefaultMaxSessions caps concurrently open sessions.
const DefaultMaxSessions = 64

// EnvServiceServer is the server API of the environment service.
type EnvServiceServer interface {
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Step(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Render(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type serverCall func(EnvServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call serverCall) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			impl := srv.(EnvServiceServer)
			if interceptor == nil {
				return call(impl, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(impl, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes EnvService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EnvServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateSession", EnvServiceServer.CreateSession),
		unaryMethod("Reset", EnvServiceServer.Reset),
		unaryMethod("Step", EnvServiceServer.Step),
		unaryMethod("Render", EnvServiceServer.Render),
		unaryMethod("History", EnvServiceServer.History),
		unaryMethod("CloseSession", EnvServiceServer.CloseSession),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterEnvServiceServer registers srv on s.
func RegisterEnvServiceServer(s grpc.ServiceRegistrar, srv EnvServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// EnvFactory builds the environment of a new session.
type EnvFactory func() (*core.Env, error)

// SessionRecorder is notified whenever the number of open sessions changes.
type SessionRecorder interface {
	SetSessions(n int)
}

type session struct {
	mu      sync.Mutex
	env     *core.Env
	created time.Time
}

// Server implements EnvServiceServer over a set of in-memory sessions.
//
// Semantics:
//   - CreateSession builds a fresh Env from the factory and returns its
//     session ID together with the shape and the first observation.
//   - Reset, Step, Render and History act on one session; calls on the same
//     session are serialised, different sessions run concurrently.
//   - Step accepts either "action" (supplier indices) or "code" (a discrete
//     action code decoded as a supplier bitmask).
//   - CloseSession drops the session; later calls return NotFound.
type Server struct {
	factory     EnvFactory
	log         logging.Logger
	recorder    SessionRecorder
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*session
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the fallback logger used when the request carries none.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSessionRecorder reports open session counts, e.g. to a gauge.
func WithSessionRecorder(r SessionRecorder) Option {
	return func(s *Server) {
		s.recorder = r
	}
}

// WithMaxSessions overrides DefaultMaxSessions. Non-positive values are
// ignored.
func WithMaxSessions(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// NewServer returns a Server creating environments with factory.
func NewServer(factory EnvFactory, opts ...Option) *Server {
	s := &Server{
		factory:     factory,
		log:         logging.Noop(),
		maxSessions: DefaultMaxSessions,
		sessions:    make(map[string]*session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Sessions returns the IDs of open sessions in sorted order.
func (s *Server) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CreateSession opens a new session.
func (s *Server) CreateSession(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.factory == nil {
		return nil, ToStatusError(fmt.Errorf("no environment factory configured: %w", core.ErrInvalidConfig))
	}

	s.mu.Lock()
	if len(s.sessions) >= s.maxSessions {
		s.mu.Unlock()
		return nil, ToStatusError(fmt.Errorf("%d sessions open: %w", s.maxSessions, ErrTooManySessions))
	}
	s.mu.Unlock()

	env, err := s.factory()
	if err != nil {
		s.logger(ctx).Error(ctx, "environment construction failed", logging.Err(err))
		return nil, ToStatusError(err)
	}
	obs, err := env.Reset(ctx)
	if err != nil {
		return nil, ToStatusError(err)
	}

	id := uuid.NewString()
	s.mu.Lock()
	if len(s.sessions) >= s.maxSessions {
		s.mu.Unlock()
		return nil, ToStatusError(fmt.Errorf("%d sessions open: %w", s.maxSessions, ErrTooManySessions))
	}
	s.sessions[id] = &session{env: env, created: time.Now()}
	n := len(s.sessions)
	s.mu.Unlock()
	s.recordSessions(n)

	cfg := env.Config()
	s.logger(ctx).Info(ctx, "session created",
		logging.String("session_id", id),
		logging.String("episode_id", env.EpisodeID()),
		logging.Int("sessions", n),
	)
	return structpb.NewStruct(map[string]interface{}{
		fieldSessionID:   id,
		fieldEpisodeID:   env.EpisodeID(),
		fieldSupplierNum: cfg.SupplierNum,
		fieldStateSpace:  cfg.StateSpace,
		fieldActionSpace: cfg.ActionSpace,
		fieldDays:        cfg.Panel.Len(),
		fieldObservation: matrixValue(obs),
	})
}

// Reset starts a new episode in the session.
func (s *Server) Reset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, sess, err := s.lookup(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	ctx, span := StartChildSpan(ctx, "EnvService.Reset", id)
	defer span.End()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	obs, err := sess.env.Reset(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, ToStatusError(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		fieldEpisodeID:   sess.env.EpisodeID(),
		fieldDay:         sess.env.Day(),
		fieldObservation: matrixValue(obs),
	})
}

// Step advances the session by one day.
func (s *Server) Step(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, sess, err := s.lookup(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	action, code, isCode, err := actionField(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	ctx, span := StartChildSpan(ctx, "EnvService.Step", id, attribute.Bool("env.action_code", isCode))
	defer span.End()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	var res core.StepResult
	if isCode {
		res, err = sess.env.StepCode(ctx, code)
	} else {
		res, err = sess.env.Step(ctx, action)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger(ctx).Warn(ctx, "step rejected",
			logging.String("session_id", id),
			logging.String("reason", core.ErrorReason(err)),
			logging.Err(err),
		)
		return nil, ToStatusError(err)
	}
	span.SetAttributes(attribute.Bool("env.done", res.Done))
	return structpb.NewStruct(stepValue(res))
}

// Render returns the current observation and demand without advancing.
func (s *Server) Render(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	_, sess, err := s.lookup(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return structpb.NewStruct(map[string]interface{}{
		fieldDay:         sess.env.Day(),
		fieldPhase:       sess.env.Phase().String(),
		fieldEpisodeID:   sess.env.EpisodeID(),
		fieldDemand:      sess.env.CurrentDemand(),
		fieldObservation: matrixValue(sess.env.Render()),
	})
}

// History returns the aligned history columns of the current episode.
func (s *Server) History(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	_, sess, err := s.lookup(in)
	if err != nil {
		return nil, ToStatusError(err)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	h := sess.env.History()
	if err := h.Check(); err != nil {
		return nil, ToStatusError(err)
	}
	return structpb.NewStruct(historyValue(h))
}

// CloseSession drops the session.
func (s *Server) CloseSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := stringField(in, fieldSessionID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return nil, ToStatusError(fmt.Errorf("session %q: %w", id, ErrSessionNotFound))
	}
	s.recordSessions(n)
	s.logger(ctx).Info(ctx, "session closed",
		logging.String("session_id", id),
		logging.Float("age_seconds", time.Since(sess.created).Seconds()),
		logging.Int("sessions", n),
	)
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

func (s *Server) lookup(in *structpb.Struct) (string, *session, error) {
	id, err := stringField(in, fieldSessionID)
	if err != nil {
		return "", nil, err
	}
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return id, nil, fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
	}
	return id, sess, nil
}

func (s *Server) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}

func (s *Server) recordSessions(n int) {
	if s.recorder != nil {
		s.recorder.SetSessions(n)
	}
}
