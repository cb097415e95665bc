// Package topo manages MongoDB connections: URI validation, liveness
// probing, classified connection errors, and idempotent teardown.
package topo

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"

	"github.com/Johndevils/Mongodb-bot/errors"
	"github.com/Johndevils/Mongodb-bot/log"
)

// ConnKind classifies why a connection attempt failed.
type ConnKind string

const (
	// KindMalformed indicates the connection string failed syntactic validation.
	KindMalformed ConnKind = "malformed"
	// KindUnreachable indicates the liveness probe timed out or was refused.
	KindUnreachable ConnKind = "unreachable"
	// KindAuth indicates the server rejected the credentials.
	KindAuth ConnKind = "auth"
)

// ConnectionError is a classified connection failure.
type ConnectionError struct {
	Kind  ConnKind
	Addr  string // redacted address, safe to log
	Cause error
}

func (e *ConnectionError) Error() string {
	msg := "connection (" + string(e.Kind) + ")"
	if e.Addr != "" {
		msg += " " + e.Addr
	}

	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Conn owns one live client connection. Close is idempotent.
type Conn struct {
	client   *mongo.Client
	database string
	addr     string // redacted, safe to log

	closed atomic.Bool
}

// ParseURI parses a connection string and requires it to name a database.
// Failures never echo credentials.
func ParseURI(uri string) (*connstring.ConnString, error) {
	cs, err := connstring.Parse(uri)
	if err != nil {
		return nil, &ConnectionError{Kind: KindMalformed, Cause: err}
	}

	if cs.Database == "" {
		return nil, &ConnectionError{
			Kind:  KindMalformed,
			Addr:  RedactedAddr(cs),
			Cause: errors.New("connection string has no database"),
		}
	}

	return cs, nil
}

// Connect validates the connection string, opens a client, and probes
// liveness within probeTimeout. Syntactic failures are reported without a
// network round trip.
func Connect(ctx context.Context, uri string, probeTimeout time.Duration) (*Conn, error) {
	cs, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	addr := RedactedAddr(cs)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &ConnectionError{Kind: KindMalformed, Addr: addr, Cause: err}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err = client.Ping(probeCtx, readpref.Primary())
	if err != nil {
		_ = client.Disconnect(context.Background())

		kind := KindUnreachable
		if isAuthError(err) {
			kind = KindAuth
		}

		return nil, &ConnectionError{Kind: kind, Addr: addr, Cause: err}
	}

	log.Ctx(ctx).Debugf("Connected to %s", addr)

	return &Conn{client: client, database: cs.Database, addr: addr}, nil
}

// Client returns the underlying client. It must not be used after Close.
func (c *Conn) Client() *mongo.Client {
	return c.client
}

// Collection returns a handle to the named collection in the connection
// string's database.
func (c *Conn) Collection(name string) *mongo.Collection {
	return c.client.Database(c.database).Collection(name)
}

// Database returns the database name from the connection string.
func (c *Conn) Database() string {
	return c.database
}

// String returns the redacted address.
func (c *Conn) String() string {
	return c.addr
}

// Alive reports whether Close has not been called.
func (c *Conn) Alive() bool {
	return c != nil && !c.closed.Load()
}

// Close releases the connection. Safe to call multiple times.
func (c *Conn) Close(ctx context.Context) error {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	return errors.Wrap(c.client.Disconnect(ctx), "disconnect")
}

// RedactedAddr renders a parsed connection string with credentials removed.
func RedactedAddr(cs *connstring.ConnString) string {
	addr := cs.Scheme + "://"
	if cs.Username != "" {
		addr += cs.Username + ":***@"
	}

	addr += strings.Join(cs.Hosts, ",")
	if cs.Database != "" {
		addr += "/" + cs.Database
	}

	return addr
}

// Redact returns a loggable form of a raw connection string. Unparseable
// input is fully masked.
func Redact(uri string) string {
	cs, err := connstring.Parse(uri)
	if err != nil {
		return "***"
	}

	return RedactedAddr(cs)
}

func isAuthError(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 18 { // AuthenticationFailed
		return true
	}

	return strings.Contains(err.Error(), "auth error") ||
		strings.Contains(err.Error(), "AuthenticationFailed")
}
