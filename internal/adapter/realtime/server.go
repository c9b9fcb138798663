package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/pkg/apperror"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Config holds websocket transport settings.
type Config struct {
	DeviceKey        string
	AllowedOrigins   []string
	SendBuffer       int
	MaxMessageSize   int64
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	OperationTimeout time.Duration
}

// Server upgrades HTTP requests to sessions and executes their commands.
type Server struct {
	broker   *Broker
	fare     ports.FareService
	cfg      Config
	policy   Policy
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewServer creates a new Server.
func NewServer(broker *Broker, fare ports.FareService, cfg Config, log zerolog.Logger) *Server {
	s := &Server{
		broker: broker,
		fare:   fare,
		cfg:    cfg,
		policy: Policy{DeviceKey: cfg.DeviceKey},
		log:    log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// ServeWS upgrades the request and runs the session until it disconnects.
// identity is nil for unauthenticated clients such as scanner devices.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request, identity *domain.Identity) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := newSession(conn, s.cfg.SendBuffer, SessionState{Identity: identity}, s.log)
	session.log.Debug().Str("remote_addr", r.RemoteAddr).Bool("authenticated", identity != nil).Msg("session opened")

	go session.writePump(s.cfg.WriteWait, s.cfg.PingPeriod)
	go func() {
		defer func() {
			if err := s.broker.Leave(context.Background(), session); err != nil && !errors.Is(err, ErrBrokerClosed) {
				session.log.Warn().Err(err).Msg("leave broker failed")
			}
			session.Close()
			session.log.Debug().Msg("session closed")
		}()
		session.readPump(s.cfg.MaxMessageSize, s.cfg.PongWait, func(in Inbound) {
			s.handle(session, in)
		})
	}()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.cfg.AllowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(origin, allowed) {
			return true
		}
	}

	s.log.Warn().Str("origin", origin).Msg("websocket origin rejected")
	return false
}

// handle runs one frame through Transition and executes the resulting commands.
func (s *Server) handle(session *Session, in Inbound) {
	next, cmds := Transition(session.state, in, s.policy)
	session.state = next

	for _, cmd := range cmds {
		if err := s.execute(session, in, cmd); err != nil {
			if !errors.Is(err, ErrBrokerClosed) {
				session.log.Error().Err(err).Str("type", in.Type).Msg("websocket command failed")
				if registering(cmd.Kind) {
					s.reply(session, errorFrame(apperror.CodeTransientIO, "Registration did not complete, reconnect and retry"))
				}
			}
			session.Close()
			return
		}
	}
}

// registering reports whether kind is part of a register handshake.
func registering(kind CommandKind) bool {
	switch kind {
	case CmdJoin, CmdPushDeviceStatus, CmdBroadcastDeviceStatus:
		return true
	}
	return false
}

func (s *Server) execute(session *Session, in Inbound, cmd Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
	defer cancel()

	switch cmd.Kind {
	case CmdIgnore:
		ev := session.log.Debug().Str("type", in.Type).Str("role", session.state.Role.String()).Str("reason", cmd.Reason)
		if in.Err != nil {
			ev = ev.Err(in.Err)
		}
		ev.Msg("frame ignored")
		return nil

	case CmdJoin:
		return s.broker.Join(ctx, session, cmd.Group)

	case CmdReply:
		s.reply(session, cmd.Reply)
		return nil

	case CmdPushDeviceStatus:
		return s.broker.SendDeviceStatus(ctx, session)

	case CmdBroadcastDeviceStatus:
		session.log.Info().Msg("scanner registered")
		return s.broker.BroadcastDeviceStatus(ctx)

	case CmdResolveTap:
		return s.resolveTap(ctx, session, cmd.UID)

	case CmdSetScanMode:
		s.setScanMode(ctx, session, cmd.Enabled)
		return nil
	}
	return nil
}

func (s *Server) reply(session *Session, env Envelope) {
	if !session.enqueue(env) {
		session.log.Warn().Str("type", env.Type).Msg("send queue full, closing session")
		session.Close()
	}
}

func (s *Server) resolveTap(ctx context.Context, session *Session, uid string) error {
	status, notice, err := s.lookupTap(ctx, uid)
	if err != nil {
		session.log.Error().Err(err).Msg("tap resolution failed")
	}
	s.reply(session, tapResult(status))
	return s.notifyDashboards(ctx, notice)
}

// ResolveTap resolves a tap reported over plain HTTP, notifies dashboards and
// returns the status token for the device.
func (s *Server) ResolveTap(ctx context.Context, uid string) (domain.TapStatus, error) {
	status, notice, err := s.lookupTap(ctx, strings.TrimSpace(uid))
	if err != nil {
		s.log.Error().Err(err).Msg("tap resolution failed")
	}
	if nerr := s.notifyDashboards(ctx, notice); nerr != nil && !errors.Is(nerr, ErrBrokerClosed) {
		s.log.Warn().Err(nerr).Msg("tap broadcast failed")
	}
	return status, err
}

// lookupTap maps a tap to the device status and the dashboard notice, if any.
func (s *Server) lookupTap(ctx context.Context, uid string) (domain.TapStatus, *Envelope, error) {
	if uid == "" {
		return domain.TapStatusInvalidCard, nil, nil
	}

	event, err := s.fare.ResolveTap(ctx, uid)
	switch {
	case err == nil && event.Found():
		return domain.TapStatusFound, &Envelope{Type: TypeScanFound, Data: scanFoundData{
			UID: event.UID,
			Passenger: passengerData{
				Name:          event.User.Name,
				WalletBalance: event.User.WalletBalance,
				RFIDLinked:    true,
			},
		}}, nil

	case err == nil:
		return domain.TapStatusNotFound, &Envelope{Type: TypeScanError, Data: scanErrorData{
			UID:   event.UID,
			Error: "Card not registered",
		}}, nil

	case apperror.HasCode(err, apperror.CodeValidation):
		return domain.TapStatusInvalidCard, nil, nil
	}

	return domain.TapStatusError, &Envelope{Type: TypeScanError, Data: scanErrorData{
		UID:   uid,
		Error: "Card lookup failed",
	}}, err
}

func (s *Server) notifyDashboards(ctx context.Context, notice *Envelope) error {
	if notice == nil {
		return nil
	}
	if ctx.Err() != nil {
		// the operation context may already be spent
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
		defer cancel()
	}
	return s.broker.Broadcast(ctx, GroupDashboards, *notice)
}

func (s *Server) setScanMode(ctx context.Context, session *Session, enabled bool) {
	actor := *session.state.Identity

	var err error
	if enabled {
		_, err = s.fare.StartScanning(ctx, actor)
	} else {
		_, err = s.fare.StopScanning(ctx, actor)
	}
	if err == nil {
		return
	}

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.InternalError(err)
	}
	session.log.Warn().Err(err).Bool("enabled", enabled).Msg("scan mode change failed")
	s.reply(session, errorFrame(appErr.Code, appErr.Message))
}
