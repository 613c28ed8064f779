package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xamero/smartdocs/config"
)

func TestTracerWithoutLicenseIsNoop(t *testing.T) {
	tracer, err := NewTracer(config.TracingConfig{AppName: "SmartDocs"})
	require.NoError(t, err)

	require.NotPanics(t, func() {
		txn := tracer.StartTransaction("route-document")
		require.Nil(t, txn)

		span := tracer.StartSpan("lock-document", txn)
		span.End()

		tracer.AddAttribute(txn, "document_id", "x")
		tracer.RecordError(txn, errors.New("boom"))
		tracer.EndTransaction(txn)
		tracer.Close()
	})
}

func TestNoopTracerHandsOutNilTransactions(t *testing.T) {
	tracer := Noop()
	require.IsType(t, noopTracer{}, tracer)
	require.Nil(t, tracer.StartTransaction("register-document"))
	require.Nil(t, tracer.StartSpan("allocate-tracking-number", nil))
}
