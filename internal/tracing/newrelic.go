package tracing

import (
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/xamero/smartdocs/config"
)

// flushTimeout bounds how long Close waits for the agent to deliver
// buffered transactions.
const flushTimeout = 10 * time.Second

// Tracer wraps the APM agent for document workflows. Transactions and
// segments it hands out may be nil, and every method accepts nil.
type Tracer interface {
	StartTransaction(name string) *newrelic.Transaction
	StartSpan(name string, txn *newrelic.Transaction) *newrelic.Segment
	EndTransaction(txn *newrelic.Transaction)
	RecordError(txn *newrelic.Transaction, err error)
	AddAttribute(txn *newrelic.Transaction, key string, value interface{})
	Close()
}

// NewTracer connects to New Relic when a license key is configured and
// falls back to Noop otherwise.
func NewTracer(cfg config.TracingConfig) (Tracer, error) {
	if cfg.LicenseKey == "" {
		log.Warn().Str("app", cfg.AppName).Msg("No New Relic license key, workflow tracing is off")
		return Noop(), nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(cfg.DistribTracing),
		newrelic.ConfigAppLogForwardingEnabled(cfg.LogEnabled),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start New Relic agent for %s", cfg.AppName)
	}

	log.Info().Str("app", cfg.AppName).Msg("New Relic agent started")
	return &agentTracer{app: app, appName: cfg.AppName}, nil
}

// Noop returns a Tracer that hands out nil transactions
func Noop() Tracer {
	return noopTracer{}
}

type agentTracer struct {
	app     *newrelic.Application
	appName string
}

func (t *agentTracer) StartTransaction(name string) *newrelic.Transaction {
	return t.app.StartTransaction(name)
}

// StartSpan opens a segment under txn. A nil txn yields a nil segment,
// whose End is a no-op.
func (t *agentTracer) StartSpan(name string, txn *newrelic.Transaction) *newrelic.Segment {
	if txn == nil {
		return nil
	}
	return txn.StartSegment(name)
}

func (t *agentTracer) EndTransaction(txn *newrelic.Transaction) {
	if txn != nil {
		txn.End()
	}
}

func (t *agentTracer) RecordError(txn *newrelic.Transaction, err error) {
	if txn != nil && err != nil {
		txn.NoticeError(err)
	}
}

func (t *agentTracer) AddAttribute(txn *newrelic.Transaction, key string, value interface{}) {
	if txn != nil {
		txn.AddAttribute(key, value)
	}
}

func (t *agentTracer) Close() {
	t.app.Shutdown(flushTimeout)
	log.Info().Str("app", t.appName).Msg("New Relic agent stopped")
}

type noopTracer struct{}

func (noopTracer) StartTransaction(string) *newrelic.Transaction { return nil }
func (noopTracer) StartSpan(string, *newrelic.Transaction) *newrelic.Segment { return nil }
func (noopTracer) EndTransaction(*newrelic.Transaction) {}
func (noopTracer) RecordError(*newrelic.Transaction, error) {}
func (noopTracer) AddAttribute(*newrelic.Transaction, string, interface{}) {}
func (noopTracer) Close() {}
