package pop3

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/harbormail/harbor/pkg/metrics"
)

func TestServerErrorReply(t *testing.T) {
	var buf bytes.Buffer
	writer := bufio.NewWriter(&buf)
	s := &POP3Session{}

	errCounter := metrics.CommandsTotal.WithLabelValues("pop3", "RETR", "error")
	okCounter := metrics.CommandsTotal.WithLabelValues("pop3", "RETR", "ok")
	errBefore := testutil.ToFloat64(errCounter)
	okBefore := testutil.ToFloat64(okCounter)

	s.serverError(writer, cmdRetr)
	writer.Flush()

	assert.Equal(t, "-ERR Internal server error\r\n", buf.String())
	assert.Equal(t, errBefore+1, testutil.ToFloat64(errCounter))
	assert.Equal(t, okBefore, testutil.ToFloat64(okCounter))
	// Internal failures are not the client's fault.
	assert.Equal(t, 0, s.errorsCount)
}
