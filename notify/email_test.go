package notify

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmailChannelSendsFormattedMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	ch := NewEmailChannel("ops-email", "smtp.example.com:587", nil, "ci@example.com", []string{"team@example.com"})
	ch.sendFunc = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	outcome := ch.Send(context.Background(), ChangeRecord{Target: "x", Version: "v2.0.0", Severity: "major"}, "")
	require.True(t, outcome.OK)
	require.Equal(t, "smtp.example.com:587", gotAddr)
	require.Equal(t, "ci@example.com", gotFrom)
	require.Equal(t, []string{"team@example.com"}, gotTo)
	require.Contains(t, string(gotMsg), "Subject: [x] version v2.0.0 (major)")
	require.Contains(t, string(gotMsg), "Change: x")
}

func TestEmailChannelDisabledWithoutRecipients(t *testing.T) {
	ch := NewEmailChannel("ops-email", "smtp.example.com:587", nil, "ci@example.com", nil)
	require.False(t, ch.Enabled())
}

func TestEmailChannelReportsSendFailure(t *testing.T) {
	ch := NewEmailChannel("ops-email", "smtp.example.com:587", nil, "ci@example.com", []string{"team@example.com"})
	ch.sendFunc = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("smtp connection refused")
	}
	outcome := ch.Send(context.Background(), ChangeRecord{Target: "x", Version: "v1.0.0"}, "")
	require.False(t, outcome.OK)
	require.Error(t, outcome.Err)
}
