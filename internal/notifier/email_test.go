package notifier

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestEmailConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  EmailConfig
		wantErr string
	}{
		{
			name:    "empty config",
			config:  EmailConfig{},
			wantErr: "SMTP host is required",
		},
		{
			name:    "missing port",
			config:  EmailConfig{Host: "smtp.example.com"},
			wantErr: "SMTP port is required",
		},
		{
			name:    "missing from",
			config:  EmailConfig{Host: "smtp.example.com", Port: 587},
			wantErr: "from address is required",
		},
		{
			name:    "missing recipients",
			config:  EmailConfig{Host: "smtp.example.com", Port: 587, From: "ward@example.com"},
			wantErr: "at least one recipient is required",
		},
		{
			name: "valid config",
			config: EmailConfig{
				Host:       "smtp.example.com",
				Port:       587,
				From:       "ward@example.com",
				Recipients: []string{"nurse@example.com"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuildMIMEMessage(t *testing.T) {
	notifier := &EmailNotifier{
		config: EmailConfig{
			From:       "VitalWatch <alerts@example.com>",
			Recipients: []string{"nurse@example.com", "oncall@example.com"},
		},
	}

	msg := string(notifier.buildMIMEMessage("Patient Alert - P001 (CRITICAL)", "Plain body", "<html>HTML body</html>"))

	for _, want := range []string{
		"From: VitalWatch <alerts@example.com>",
		"To: nurse@example.com, oncall@example.com",
		"Subject: Patient Alert - P001 (CRITICAL)",
		"MIME-Version: 1.0",
		"multipart/alternative",
		"Plain body",
		"<html>HTML body</html>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestRenderEmailHTML(t *testing.T) {
	n := NewAlertNotification("t", testAlert())
	html, err := renderEmailHTML(n, "Heart Rate: 45 bpm <low>")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "#d32f2f") {
		t.Error("critical alert should use the red accent")
	}
	if !strings.Contains(html, "Heart Rate: 45 bpm &lt;low&gt;") {
		t.Error("body should be HTML escaped")
	}
	if !strings.Contains(html, "Alert ID: a1b2c3") {
		t.Error("missing alert id")
	}
}

func TestExtractEmail(t *testing.T) {
	notifier := &EmailNotifier{}

	tests := []struct {
		input string
		want  string
	}{
		{"ward@example.com", "ward@example.com"},
		{"Ward Four <ward@example.com>", "ward@example.com"},
		{"VitalWatch Alerts <alerts@example.com>", "alerts@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := notifier.extractEmail(tt.input); got != tt.want {
				t.Errorf("extractEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// smtpStub accepts one plain SMTP session at a time and captures message bodies.
type smtpStub struct {
	listener net.Listener
	messages chan string
}

func newSMTPStub(t *testing.T) *smtpStub {
	t.Helper()
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	s := &smtpStub{listener: listener, messages: make(chan string, 4)}
	go s.serve()
	t.Cleanup(func() { listener.Close() })
	return s
}

func (s *smtpStub) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *smtpStub) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	reply := func(line string) {
		w.WriteString(line + "\r\n")
		w.Flush()
	}

	reply("220 localhost ESMTP stub")

	var data strings.Builder
	inData := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		if inData {
			if line == "." {
				inData = false
				s.messages <- data.String()
				data.Reset()
				reply("250 OK")
				continue
			}
			data.WriteString(line + "\n")
			continue
		}

		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			w.WriteString("250-localhost\r\n")
			reply("250 OK")
		case strings.HasPrefix(cmd, "MAIL FROM"), strings.HasPrefix(cmd, "RCPT TO"):
			reply("250 OK")
		case cmd == "DATA":
			inData = true
			reply("354 Start mail input")
		case cmd == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("500 Unknown command")
		}
	}
}

func TestEmailNotifierSendWithStubSMTP(t *testing.T) {
	stub := newSMTPStub(t)

	host, portStr, err := net.SplitHostPort(stub.listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	notifier, err := NewEmailNotifier(EmailConfig{
		Host:       host,
		Port:       port,
		From:       "alerts@example.com",
		Recipients: []string{"nurse@example.com"},
	})
	if err != nil {
		t.Fatalf("failed to create notifier: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := notifier.Send(ctx, NewAlertNotification("t", testAlert())); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case msg := <-stub.messages:
		if !strings.Contains(msg, "Subject: Patient Alert - P001 (CRITICAL)") {
			t.Error("message missing subject")
		}
		if !strings.Contains(msg, "Heart Rate: 45 bpm") {
			t.Error("message missing alert body")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received by stub server")
	}
}
