package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/doramirdor/friday-ai/internal/alerts"
	"github.com/doramirdor/friday-ai/internal/codec"
	"github.com/doramirdor/friday-ai/internal/config"
	"github.com/doramirdor/friday-ai/internal/metrics"
	"github.com/doramirdor/friday-ai/internal/protocol"
	"github.com/doramirdor/friday-ai/internal/stream"
	"github.com/doramirdor/friday-ai/internal/transcript"
)

// maxLineBytes bounds one command line. A 30s float32 chunk at 16kHz is
// ~2.5MB base64, leave generous headroom.
const maxLineBytes = 16 * 1024 * 1024

// TCPServer accepts local client connections speaking the newline-delimited
// JSON command protocol. Each connection gets a reader goroutine; replies
// and asynchronous transcript updates share a per-connection write lock so
// records never interleave.
type TCPServer struct {
	config    *config.ServerConfig
	logger    *slog.Logger
	registry  *stream.Registry
	processor *stream.Processor
	matcher   alerts.Matcher
	converter codec.Converter

	alertTimeout time.Duration
	sampleRate   int

	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stream ownership: which connection started which stream, so updates
	// are routed back and orphaned streams are stopped on disconnect.
	conns   map[*clientConn]struct{}
	owners  map[string]*clientConn
	ownerMu sync.RWMutex

	// Statistics
	connectionsTotal uint64
	commandsTotal    uint64
	commandErrors    uint64
	statsMu          sync.RWMutex
}

// clientConn is one accepted connection
type clientConn struct {
	conn    net.Conn
	writeMu sync.Mutex

	// IDs of streams this connection started
	streams   map[string]struct{}
	streamsMu sync.Mutex
}

// NewTCPServer creates the command server. The processor is wired with
// SetProcessor after construction since it needs the server as its update
// sink.
func NewTCPServer(cfg *config.ServerConfig, logger *slog.Logger, registry *stream.Registry,
	matcher alerts.Matcher, converter codec.Converter,
	alertTimeout time.Duration, sampleRate int) *TCPServer {

	ctx, cancel := context.WithCancel(context.Background())

	return &TCPServer{
		config:       cfg,
		logger:       logger,
		registry:     registry,
		matcher:      matcher,
		converter:    converter,
		alertTimeout: alertTimeout,
		sampleRate:   sampleRate,
		ctx:          ctx,
		cancel:       cancel,
		conns:        make(map[*clientConn]struct{}),
		owners:       make(map[string]*clientConn),
	}
}

// SetProcessor installs the processing loop used by the one-shot
// transcription path. Must be called before Start.
func (s *TCPServer) SetProcessor(p *stream.Processor) {
	s.processor = p
}

// Start begins accepting connections
func (s *TCPServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener

	s.logger.Info("Command server started",
		slog.String("address", addr),
		slog.Int("max_connections", s.config.MaxConnections))

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop gracefully stops the server and closes every connection
func (s *TCPServer) Stop() error {
	s.logger.Info("Stopping command server...")

	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn("Error closing listener", slog.String("error", err.Error()))
		}
	}

	s.ownerMu.Lock()
	for c := range s.conns {
		c.conn.Close()
	}
	s.ownerMu.Unlock()

	s.wg.Wait()

	s.logger.Info("Command server stopped")
	return nil
}

func (s *TCPServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}

			s.logger.Warn("Accept failed", slog.String("error", err.Error()))
			continue
		}

		s.ownerMu.Lock()
		atCapacity := len(s.conns) >= s.config.MaxConnections
		s.ownerMu.Unlock()

		if atCapacity {
			s.logger.Warn("Connection rejected, at capacity",
				slog.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}

		c := &clientConn{
			conn:    conn,
			streams: make(map[string]struct{}),
		}

		s.ownerMu.Lock()
		s.conns[c] = struct{}{}
		s.ownerMu.Unlock()

		s.statsMu.Lock()
		s.connectionsTotal++
		s.statsMu.Unlock()

		metrics.ActiveConnections.Inc()

		s.wg.Add(1)
		go s.handleConnection(c)
	}
}

// handleConnection reads command lines until the client disconnects
func (s *TCPServer) handleConnection(c *clientConn) {
	defer s.wg.Done()
	defer s.closeConnection(c)

	s.logger.Debug("Client connected",
		slog.String("remote", c.conn.RemoteAddr().String()))

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.dispatch(c, line)
		if err := s.writeRecord(c, resp); err != nil {
			s.logger.Warn("Failed to write response",
				slog.String("remote", c.conn.RemoteAddr().String()),
				slog.String("error", err.Error()))
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("Connection read ended",
			slog.String("remote", c.conn.RemoteAddr().String()),
			slog.String("error", err.Error()))
	}
}

// closeConnection tears down a connection and stops every stream it started
// but never stopped. Final transcripts for those streams are drained and
// dropped since their owner is gone.
func (s *TCPServer) closeConnection(c *clientConn) {
	c.conn.Close()

	c.streamsMu.Lock()
	orphaned := make([]string, 0, len(c.streams))
	for id := range c.streams {
		orphaned = append(orphaned, id)
	}
	c.streams = make(map[string]struct{})
	c.streamsMu.Unlock()

	s.ownerMu.Lock()
	delete(s.conns, c)
	for _, id := range orphaned {
		delete(s.owners, id)
	}
	s.ownerMu.Unlock()

	for _, id := range orphaned {
		if err := s.registry.StopStream(id); err != nil {
			s.logger.Warn("Failed to stop orphaned stream",
				slog.String("stream_id", id),
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("Stopped orphaned stream",
				slog.String("stream_id", id))
		}
	}

	metrics.ActiveConnections.Dec()

	s.logger.Debug("Client disconnected",
		slog.String("remote", c.conn.RemoteAddr().String()))
}

// dispatch parses and executes one command line. Every error becomes an
// error reply; the connection stays open.
func (s *TCPServer) dispatch(c *clientConn, line []byte) *protocol.Response {
	s.statsMu.Lock()
	s.commandsTotal++
	s.statsMu.Unlock()

	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		s.commandFailed("invalid", err)
		return protocol.Fail(err)
	}

	var resp *protocol.Response

	switch cmd.Type {
	case protocol.CmdStartStream:
		resp = s.handleStartStream(c, cmd)
	case protocol.CmdStopStream:
		resp = s.handleStopStream(c, cmd)
	case protocol.CmdStreamChunk:
		resp = s.handleStreamChunk(cmd)
	case protocol.CmdDualStreamChunk:
		resp = s.handleDualStreamChunk(cmd)
	case protocol.CmdCheckAlerts:
		resp = s.handleCheckAlerts(cmd)
	default:
		resp = protocol.Fail(fmt.Errorf("unknown command type %q", cmd.Type))
	}

	result := "success"
	if !resp.Success {
		result = "error"
		s.statsMu.Lock()
		s.commandErrors++
		s.statsMu.Unlock()
	}
	metrics.CommandsTotal.WithLabelValues(string(cmd.Type), result).Inc()

	return resp
}

func (s *TCPServer) commandFailed(cmdType string, err error) {
	s.statsMu.Lock()
	s.commandErrors++
	s.statsMu.Unlock()

	metrics.CommandsTotal.WithLabelValues(cmdType, "error").Inc()

	s.logger.Debug("Command failed",
		slog.String("type", cmdType),
		slog.String("error", err.Error()))
}

func (s *TCPServer) handleStartStream(c *clientConn, cmd *protocol.Command) *protocol.Response {
	if _, err := s.registry.StartStream(cmd.StreamID, cmd.StreamType); err != nil {
		return protocol.Fail(err)
	}

	c.streamsMu.Lock()
	c.streams[cmd.StreamID] = struct{}{}
	c.streamsMu.Unlock()

	s.ownerMu.Lock()
	s.owners[cmd.StreamID] = c
	s.ownerMu.Unlock()

	return protocol.OK(cmd.StreamID)
}

func (s *TCPServer) handleStopStream(c *clientConn, cmd *protocol.Command) *protocol.Response {
	// Forget ownership first so the final drain's updates are still
	// delivered, then no more after the reply.
	if err := s.registry.StopStream(cmd.StreamID); err != nil {
		return protocol.Fail(err)
	}

	c.streamsMu.Lock()
	delete(c.streams, cmd.StreamID)
	c.streamsMu.Unlock()

	s.ownerMu.Lock()
	delete(s.owners, cmd.StreamID)
	s.ownerMu.Unlock()

	return protocol.OK(cmd.StreamID)
}

func (s *TCPServer) handleStreamChunk(cmd *protocol.Command) *protocol.Response {
	data, err := cmd.DecodeAudioData()
	if err != nil {
		return protocol.Fail(err)
	}

	if err := s.registry.AddAudioChunk(cmd.StreamID, data); err != nil {
		return protocol.Fail(err)
	}

	return protocol.OK(cmd.StreamID)
}

// handleDualStreamChunk serves the legacy one-shot path: decode an audio
// file from disk, transcribe it synchronously and return the transcript in
// the reply. No stream registration is involved.
func (s *TCPServer) handleDualStreamChunk(cmd *protocol.Command) *protocol.Response {
	samples, err := s.converter.ResampleToPCM(s.ctx, cmd.AudioPath, s.sampleRate)
	if err != nil {
		return protocol.Fail(fmt.Errorf("failed to decode %s: %w", cmd.AudioPath, err))
	}

	result, rejectReason, err := s.processor.TranscribeOnce(s.ctx, samples, s.sampleRate, cmd.StreamType)
	if err != nil {
		return protocol.Fail(err)
	}

	resp := protocol.OK("")

	if rejectReason != "" {
		// Rejected audio is a success with an empty transcript; the file
		// was simply not worth transcribing.
		resp.Transcript = &protocol.TranscriptResult{}
		return resp
	}

	tr := &protocol.TranscriptResult{
		Language:            result.Language,
		LanguageProbability: result.LanguageProbability,
		Duration:            result.Duration,
	}

	for _, seg := range result.Segments {
		if tr.Text != "" && seg.Text != "" {
			tr.Text += " "
		}
		tr.Text += seg.Text
		tr.Segments = append(tr.Segments, protocol.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}

	resp.Transcript = tr
	return resp
}

func (s *TCPServer) handleCheckAlerts(cmd *protocol.Command) *protocol.Response {
	ctx, cancel := context.WithTimeout(s.ctx, s.alertTimeout)
	defer cancel()

	matches, err := s.matcher.Match(ctx, cmd.Transcript, cmd.Keywords)
	if err != nil {
		metrics.AlertChecks.WithLabelValues("error").Inc()
		return protocol.Fail(err)
	}

	if len(matches) > 0 {
		metrics.AlertChecks.WithLabelValues("matched").Inc()
	} else {
		metrics.AlertChecks.WithLabelValues("no_match").Inc()
	}

	resp := protocol.OK("")
	resp.Matches = matches
	return resp
}

// PublishUpdate routes a completed sentence to the connection that owns the
// stream. Updates for unowned streams are dropped.
func (s *TCPServer) PublishUpdate(streamID string, update *transcript.Update) {
	s.ownerMu.RLock()
	c, ok := s.owners[streamID]
	s.ownerMu.RUnlock()

	if !ok {
		return
	}

	record := &protocol.TranscriptUpdate{
		Type:       protocol.UpdateRecordType,
		StreamID:   streamID,
		StreamType: update.StreamType,
		Text:       update.Text,
		StartTime:  update.StartTime,
		EndTime:    update.EndTime,
	}

	if err := s.writeRecord(c, record); err != nil {
		s.logger.Warn("Failed to push transcript update",
			slog.String("stream_id", streamID),
			slog.String("error", err.Error()))
	}
}

// writeRecord marshals one record and writes it with a trailing newline
// under the connection's write lock
func (s *TCPServer) writeRecord(c *clientConn, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	return nil
}

// ServerStats represents command server statistics
type ServerStats struct {
	ActiveConnections int    `json:"active_connections"`
	ConnectionsTotal  uint64 `json:"connections_total"`
	CommandsTotal     uint64 `json:"commands_total"`
	CommandErrors     uint64 `json:"command_errors"`
}

// GetStatistics returns current server statistics
func (s *TCPServer) GetStatistics() ServerStats {
	s.ownerMu.RLock()
	active := len(s.conns)
	s.ownerMu.RUnlock()

	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	return ServerStats{
		ActiveConnections: active,
		ConnectionsTotal:  s.connectionsTotal,
		CommandsTotal:     s.commandsTotal,
		CommandErrors:     s.commandErrors,
	}
}
