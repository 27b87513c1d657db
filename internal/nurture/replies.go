package nurture

import (
	"context"
	"crypto/tls"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/recruitin/kandidatentekort/internal/config"
)

// ReplyChecker reports, per address, the latest mail received from it on or
// after since. Addresses without mail are absent from the result.
type ReplyChecker interface {
	LastReplies(ctx context.Context, since time.Time, addrs []string) (map[string]time.Time, error)
}

const maxReplyScan = 500

// IMAPReplies scans the INBOX over IMAPS.
type IMAPReplies struct {
	cfg config.IMAPConfig
}

// NewIMAPReplies creates an IMAPReplies.
func NewIMAPReplies(cfg config.IMAPConfig) *IMAPReplies {
	return &IMAPReplies{cfg: cfg}
}

// LastReplies returns, keyed by lowercased address, the receive time of the
// newest INBOX message from each of addrs. The IMAP SINCE search is day
// granular, so callers compare the times themselves.
func (r *IMAPReplies) LastReplies(ctx context.Context, since time.Time, addrs []string) (map[string]time.Time, error) {
	want := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		want[normalizeAddr(a)] = true
	}
	if len(want) == 0 {
		return map[string]time.Time{}, nil
	}

	c, err := r.dial()
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	defer func() {
		if err := c.Logout().Wait(); err != nil {
			zap.L().Debug("nurture: imap logout", zap.Error(err))
		}
		_ = c.Close()
	}()

	if _, err := c.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, eris.Wrap(err, "nurture: imap select inbox")
	}

	data, err := c.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, eris.Wrap(err, "nurture: imap search")
	}
	uids := data.AllUIDs()
	if len(uids) == 0 {
		return map[string]time.Time{}, nil
	}
	if len(uids) > maxReplyScan {
		uids = uids[len(uids)-maxReplyScan:]
	}

	fetch := c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{UID: true, Envelope: true, InternalDate: true})
	defer func() { _ = fetch.Close() }()

	found := map[string]time.Time{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg := fetch.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			return nil, eris.Wrap(err, "nurture: imap fetch")
		}
		if buf.Envelope == nil {
			continue
		}
		at := buf.InternalDate
		if at.IsZero() {
			at = buf.Envelope.Date
		}
		for i := range buf.Envelope.From {
			from := strings.ToLower(buf.Envelope.From[i].Addr())
			if want[from] && at.After(found[from]) {
				found[from] = at
			}
		}
	}
	if err := fetch.Close(); err != nil {
		return nil, eris.Wrap(err, "nurture: imap fetch close")
	}
	return found, nil
}

func (r *IMAPReplies) dial() (*imapclient.Client, error) {
	if r.cfg.Addr == "" || r.cfg.Username == "" || r.cfg.Password == "" {
		return nil, eris.New("nurture: imap not configured")
	}
	host, _, err := net.SplitHostPort(r.cfg.Addr)
	if err != nil {
		return nil, eris.Wrapf(err, "nurture: imap addr %q", r.cfg.Addr)
	}
	c, err := imapclient.DialTLS(r.cfg.Addr, &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host},
	})
	if err != nil {
		return nil, eris.Wrap(err, "nurture: imap dial")
	}
	if err := c.Login(r.cfg.Username, r.cfg.Password).Wait(); err != nil {
		_ = c.Close()
		return nil, eris.Wrap(err, "nurture: imap login")
	}
	return c, nil
}

func normalizeAddr(a string) string {
	return strings.ToLower(strings.TrimSpace(a))
}
