package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetVerbose_TogglesEnabled(t *testing.T) {
	original := Enabled()
	defer SetVerbose(original)

	SetVerbose(true)
	require.True(t, Enabled())

	SetVerbose(false)
	require.False(t, Enabled())
}

func TestStartSpanAndEndSpan_DoesNotPanicWithoutAConfiguredProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "abathur/test", "test.op")
	require.NotNil(t, ctx)
	EndSpan(span, nil)
	EndSpan(span, errors.New("boom"))
}
