package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opst/relmon/pkg/domain"
	"github.com/opst/relmon/pkg/notify"
	"github.com/opst/relmon/pkg/notify/mock"
	"github.com/opst/relmon/pkg/utils/try"
	"github.com/wneessen/go-mail"
)

func event(kind notify.Kind) notify.Event {
	return notify.Event{
		Kind:      kind,
		RelMon:    domain.RelMon{Id: "1700000000", Name: "CMSSW_14_0_0_vs_13_3_0", Status: domain.Done},
		Recipient: domain.UserInfo{Login: "jdoe", Fullname: "J Doe", Email: "jdoe@example.com"},
		By:        domain.UserInfo{Login: "admin", Fullname: "The Admin", Email: "admin@example.com"},
	}
}

func TestWeb(t *testing.T) {
	type Resp struct {
		StatusCode  int
		ContentType string
		Content     string
	}

	type When struct {
		resp1 Resp
		resp2 Resp
	}

	type Then struct {
		err      bool
		contains []string
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			ev := event(notify.Done)

			invoked := map[string]bool{}
			handler := func(name string, resp Resp) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					invoked[name] = true
					if r.Method != http.MethodPost {
						t.Errorf("%s: unexpected method: %s", name, r.Method)
					}
					if ct := r.Header.Get("Content-Type"); ct != "application/json" {
						t.Errorf("%s: unexpected content type: %s", name, ct)
					}
					var got notify.Event
					if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
						t.Fatalf("%s: %v", name, err)
					}
					if got.Kind != ev.Kind || got.RelMon.Id != ev.RelMon.Id || got.Recipient != ev.Recipient {
						t.Errorf("%s: unexpected payload: %+v", name, got)
					}

					if resp.ContentType != "" {
						w.Header().Set("Content-Type", resp.ContentType)
					}
					w.WriteHeader(resp.StatusCode)
					w.Write([]byte(resp.Content))
				})
			}

			server1 := httptest.NewServer(handler("server1", when.resp1))
			defer server1.Close()
			server2 := httptest.NewServer(handler("server2", when.resp2))
			defer server2.Close()

			testee := notify.Web{
				URLs: []*url.URL{
					try.To(url.Parse(server1.URL)).OrFatal(t),
					try.To(url.Parse(server2.URL)).OrFatal(t),
				},
			}
			err := testee.Notify(context.Background(), ev)

			if !invoked["server1"] || !invoked["server2"] {
				t.Errorf("not all urls are called: %v", invoked)
			}
			if then.err {
				if !errors.Is(err, notify.ErrNotifyFailed) {
					t.Fatalf("unexpected error: %v", err)
				}
				for _, c := range then.contains {
					if !strings.Contains(err.Error(), c) {
						t.Errorf("error message does not contain %q: %s", c, err)
					}
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}
	}

	t.Run("all 2xx", theory(
		When{resp1: Resp{StatusCode: http.StatusOK}, resp2: Resp{StatusCode: http.StatusNoContent}},
		Then{},
	))

	t.Run("a failure does not stop others", theory(
		When{
			resp1: Resp{StatusCode: http.StatusInternalServerError, ContentType: "text/plain", Content: "broken"},
			resp2: Resp{StatusCode: http.StatusOK},
		},
		Then{err: true, contains: []string{"500", "broken"}},
	))

	t.Run("non-text body is not in the message", theory(
		When{
			resp1: Resp{StatusCode: http.StatusOK},
			resp2: Resp{StatusCode: http.StatusBadGateway, ContentType: "application/octet-stream", Content: "binary"},
		},
		Then{err: true, contains: []string{"502", "application/octet-stream"}},
	))

	t.Run("no urls, no requests", func(t *testing.T) {
		if err := (notify.Web{}).Notify(context.Background(), event(notify.Done)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestMulti(t *testing.T) {
	expected := errors.New("fake")
	ok := mock.NewNotifier()
	ng := mock.NewNotifier()
	ng.Impl = func(context.Context, notify.Event) error { return expected }
	last := mock.NewNotifier()

	err := notify.Multi{ok, ng, last}.Notify(context.Background(), event(notify.Failed))
	if !errors.Is(err, expected) {
		t.Errorf("unexpected error: %v", err)
	}
	for n, m := range []*mock.Notifier{ok, ng, last} {
		if evs := m.Events(); len(evs) != 1 || evs[0].Kind != notify.Failed {
			t.Errorf("#%d: events = %+v", n, evs)
		}
	}

	if err := (notify.None{}).Notify(context.Background(), event(notify.Done)); err != nil {
		t.Errorf("None: %v", err)
	}
}

type sender struct {
	sent []*mail.Msg
	err  error
}

func (s *sender) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	s.sent = append(s.sent, messages...)
	return s.err
}

func render(t *testing.T, msg *mail.Msg) string {
	t.Helper()
	buf := new(bytes.Buffer)
	if _, err := msg.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestMail(t *testing.T) {
	conf := notify.SMTPConfig{Host: "localhost", Port: 25, From: "relmon@example.com"}

	t.Run("done notification links reports and attaches logs", func(t *testing.T) {
		s := &sender{}
		testee := try.To(notify.NewMail(
			conf, "https://reports.example.com/", "https://relmon.example.com/", notify.WithSender(s),
		)).OrFatal(t)

		attachment := filepath.Join(t.TempDir(), "1700000000.tar.gz")
		if err := os.WriteFile(attachment, []byte("logs"), 0644); err != nil {
			t.Fatal(err)
		}
		ev := event(notify.Done)
		ev.Attachment = attachment

		if err := testee.Notify(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
		if len(s.sent) != 1 {
			t.Fatalf("sent %d messages", len(s.sent))
		}

		rcpt := try.To(s.sent[0].GetRecipients()).OrFatal(t)
		if len(rcpt) != 1 || rcpt[0] != "jdoe@example.com" {
			t.Errorf("recipients: %v", rcpt)
		}
		text := render(t, s.sent[0])
		for _, c := range []string{
			"Subject: RelMon CMSSW_14_0_0_vs_13_3_0 is done",
			"relmon@example.com",
			"1700000000.tar.gz",
			"is done.",
			"Logs of the job are attached.",
		} {
			if !strings.Contains(text, c) {
				t.Errorf("message does not contain %q:\n%s", c, text)
			}
		}
	})

	t.Run("reset notification tells who reset", func(t *testing.T) {
		s := &sender{}
		testee := try.To(notify.NewMail(conf, "r", "s", notify.WithSender(s))).OrFatal(t)
		if err := testee.Notify(context.Background(), event(notify.Reset)); err != nil {
			t.Fatal(err)
		}
		text := render(t, s.sent[0])
		if !strings.Contains(text, "was reset by The Admin.") {
			t.Errorf("message:\n%s", text)
		}
		if strings.Contains(text, "attached") {
			t.Errorf("no attachment is expected:\n%s", text)
		}
	})

	t.Run("delivery failure is reported", func(t *testing.T) {
		expected := errors.New("smtp down")
		testee := try.To(notify.NewMail(conf, "r", "s", notify.WithSender(&sender{err: expected}))).OrFatal(t)
		err := testee.Notify(context.Background(), event(notify.Failed))
		if !errors.Is(err, notify.ErrNotifyFailed) || !errors.Is(err, expected) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("events without recipient address are skipped", func(t *testing.T) {
		s := &sender{}
		testee := try.To(notify.NewMail(conf, "r", "s", notify.WithSender(s))).OrFatal(t)
		ev := event(notify.Done)
		ev.Recipient.Email = ""
		if err := testee.Notify(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
		if len(s.sent) != 0 {
			t.Errorf("sent: %d", len(s.sent))
		}
	})
}
