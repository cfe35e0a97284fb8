package device

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/muurk/hbootdbg/internal/logging"
	"github.com/muurk/hbootdbg/internal/transport"
)

const (
	fastbootPrefix = "oem "
	hbootPrefix    = "keytest "
	hbootEcho      = "keytest"
	hbootPrompt    = "hboot>"
	lineSeparator  = "\r\n"
)

// LinkConfig holds the configuration of a device link.
type LinkConfig struct {
	// FastbootMode selects the programmatic "oem" channel. When false the
	// interactive hboot shell ("keytest") is used and replies carry the
	// echoed command line and the prompt.
	FastbootMode bool

	// ReconnectInterval is the fixed wait between attempts to reach the device.
	// Default: 1 second
	ReconnectInterval time.Duration

	// ReadChunk is the size of each transport read.
	// Default: 1024
	ReadChunk int
}

// DefaultLinkConfig returns a LinkConfig with sensible defaults.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		FastbootMode:      false,
		ReconnectInterval: time.Second,
		ReadChunk:         1024,
	}
}

// Link carries one command at a time to the device agent. It owns the
// transport; callers must not share a Link between goroutines.
type Link struct {
	dial   transport.Dialer
	tr     transport.Transport
	config LinkConfig
	logger *zap.Logger
}

// NewLink creates a link that opens its transport with dial.
func NewLink(dial transport.Dialer, config LinkConfig, logger *zap.Logger) *Link {
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = time.Second
	}
	if config.ReadChunk <= 0 {
		config.ReadChunk = 1024
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Link{
		dial:   dial,
		config: config,
		logger: logger,
	}
}

// Connect opens the transport, retrying at a fixed interval until the device
// answers or ctx is done.
func (l *Link) Connect(ctx context.Context) error {
	if l.tr != nil {
		return nil
	}

	attempts := 0
	op := func() error {
		attempts++
		tr, err := l.dial(ctx)
		if err != nil {
			return err
		}
		l.tr = tr
		return nil
	}
	notify := func(err error, next time.Duration) {
		if attempts == 1 {
			l.logger.Info("Waiting for device...", zap.Error(err))
			return
		}
		l.logger.Debug("device still unreachable",
			zap.Int("attempt", attempts),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(l.config.ReconnectInterval), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	l.logger.Info("Device link established", zap.Int("attempts", attempts))
	return nil
}

// Exchange sends cmd and returns the decoded reply. A device error is not an
// error here: it is carried in Reply.Error. If the transport breaks, the
// link reconnects and sends the command again.
func (l *Link) Exchange(ctx context.Context, cmd Command) (*Reply, error) {
	packed := cmd.Pack()
	logging.LogDeviceCommand("request", cmd.Kind.String(), cmd.Error.String(), len(packed))

	raw, err := l.exchange(ctx, packed, cmd.Kind.String())
	if err != nil {
		return nil, err
	}

	reply, err := Unpack(raw)
	if err != nil {
		logging.LogRawBytes("malformed device reply", raw)
		return nil, err
	}
	logging.LogDeviceCommand("reply", reply.Kind.String(), reply.Error.String(), len(raw))
	return reply, nil
}

// Raw sends payload without going through the command codec and returns
// the stripped reply bytes.
func (l *Link) Raw(ctx context.Context, payload []byte) ([]byte, error) {
	return l.exchange(ctx, payload, "raw")
}

func (l *Link) exchange(ctx context.Context, packed []byte, label string) ([]byte, error) {
	for {
		if err := l.Connect(ctx); err != nil {
			return nil, err
		}

		raw, err := l.roundTrip(packed)
		if err == nil {
			return raw, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		l.logger.Warn("device link lost, reconnecting",
			zap.String("command", label),
			zap.Error(err),
		)
		_ = l.tr.Close()
		l.tr = nil
	}
}

// roundTrip writes the enveloped command and collects the reply until the
// transport goes quiet.
func (l *Link) roundTrip(packed []byte) ([]byte, error) {
	out := l.envelope(packed)
	logging.LogRawBytes("device send", out)
	if err := l.tr.Send(out); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	var data []byte
	for {
		chunk, err := l.tr.Receive(l.config.ReadChunk)
		if err != nil {
			if errors.Is(err, io.EOF) && len(data) > 0 {
				break
			}
			return nil, fmt.Errorf("receive: %w", err)
		}
		if len(chunk) == 0 {
			break
		}
		data = append(data, chunk...)
	}
	logging.LogRawBytes("device recv", data)

	if !l.config.FastbootMode {
		data = stripEnvelope(data)
	}
	return data, nil
}

// envelope wraps a packed command for the bootloader shell.
func (l *Link) envelope(packed []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(packed)
	if l.config.FastbootMode {
		return []byte(fastbootPrefix + encoded)
	}
	return []byte(hbootPrefix + encoded + "\n")
}

// stripEnvelope removes the echoed command line and the trailing prompt that
// the interactive shell adds. Once the target sits on a breakpoint the shell
// is gone and the reply arrives bare, so each part is only removed when
// present.
func stripEnvelope(data []byte) []byte {
	lines := bytes.Split(data, []byte(lineSeparator))

	start, end := 0, len(lines)
	if bytes.HasPrefix(lines[0], []byte(hbootEcho)) {
		start = 1
	}
	if bytes.HasSuffix(lines[len(lines)-1], []byte(hbootPrompt)) {
		end--
	}
	if start >= end {
		return nil
	}
	return bytes.Join(lines[start:end], []byte(lineSeparator))
}

// Close releases the transport.
func (l *Link) Close() error {
	if l.tr == nil {
		return nil
	}
	err := l.tr.Close()
	l.tr = nil
	return err
}
