// Package messages classifies job failures and renders the user-facing text
// for them in the supported locales.
package messages

import (
	"errors"
	"net"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/domain"
)

var supported = []language.Tag{language.English, language.Indonesian}

var matcher = language.NewMatcher(supported)

var texts = map[domain.FailureReason][2]string{
	domain.ReasonNetwork: {
		"Connection problem. Check your network and try again.",
		"Masalah koneksi. Periksa jaringan Anda lalu coba lagi.",
	},
	domain.ReasonServer: {
		"The generation service had a problem. Please try again shortly.",
		"Layanan generasi sedang bermasalah. Silakan coba lagi sebentar lagi.",
	},
	domain.ReasonValidation: {
		"The request was not accepted. Adjust your prompt or settings and try again.",
		"Permintaan tidak diterima. Ubah prompt atau pengaturan lalu coba lagi.",
	},
	domain.ReasonUnauthorized: {
		"Your session is not authorized for this action. Sign in again.",
		"Sesi Anda tidak diizinkan untuk tindakan ini. Silakan masuk kembali.",
	},
	domain.ReasonWorkerUnavailable: {
		"No generation workers are available right now. Try again in a few minutes.",
		"Tidak ada worker yang tersedia saat ini. Coba lagi dalam beberapa menit.",
	},
	domain.ReasonTimeout: {
		"Generation took longer than 5 minutes and was stopped.",
		"Proses generasi melebihi 5 menit dan dihentikan.",
	},
	domain.ReasonCancelled: {
		"Generation was cancelled.",
		"Proses generasi dibatalkan.",
	},
	domain.ReasonGeneric: {
		"Generation failed. Please try again.",
		"Generasi gagal. Silakan coba lagi.",
	},
}

var printers = func() map[language.Tag]*message.Printer {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for reason, t := range texts {
		_ = b.SetString(language.English, string(reason), t[0])
		_ = b.SetString(language.Indonesian, string(reason), t[1])
	}
	out := make(map[language.Tag]*message.Printer, len(supported))
	for _, tag := range supported {
		out[tag] = message.NewPrinter(tag, message.Catalog(b))
	}
	return out
}()

// Text returns the message for reason in locale ("en", "id", or any BCP 47
// tag; unknown locales get English).
func Text(reason domain.FailureReason, locale string) string {
	if _, ok := texts[reason]; !ok {
		reason = domain.ReasonGeneric
	}
	return printers[match(locale)].Sprintf(string(reason))
}

func match(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	_, idx, _ := matcher.Match(tag)
	return supported[idx]
}

// Reason classifies err into the failure reason shown to users.
func Reason(err error) domain.FailureReason {
	var netErr net.Error
	switch {
	case err == nil:
		return domain.ReasonGeneric
	case errors.Is(err, domain.ErrGenerationTimeout):
		return domain.ReasonTimeout
	case errors.Is(err, domain.ErrCancelled):
		return domain.ReasonCancelled
	case errors.Is(err, domain.ErrWorkerUnavailable):
		return domain.ReasonWorkerUnavailable
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrForbidden):
		return domain.ReasonUnauthorized
	case errors.Is(err, domain.ErrValidation):
		return domain.ReasonValidation
	case errors.Is(err, domain.ErrServer), errors.Is(err, domain.ErrRateLimited):
		return domain.ReasonServer
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrTimeout), errors.As(err, &netErr):
		return domain.ReasonNetwork
	}
	var remote *domain.RemoteJobError
	if errors.As(err, &remote) {
		return remoteReason(remote.Message)
	}
	return domain.ReasonGeneric
}

// remoteMarkers classify the worker pool's free-text error_message. The first
// matching row wins, so specific phrases come before broad ones.
var remoteMarkers = []struct {
	reason  domain.FailureReason
	markers []string
}{
	{domain.ReasonWorkerUnavailable, []string{"temporarily unavailable", "no workers", "worker unavailable"}},
	{domain.ReasonUnauthorized, []string{"unauthorized", "forbidden", "permission denied"}},
	{domain.ReasonValidation, []string{"validation", "invalid", "malformed"}},
	{domain.ReasonServer, []string{"server error", "internal error", "rate limit"}},
	{domain.ReasonNetwork, []string{"network", "timeout", "timed out", "connection"}},
}

func remoteReason(msg string) domain.FailureReason {
	msg = strings.ToLower(msg)
	for _, row := range remoteMarkers {
		for _, m := range row.markers {
			if strings.Contains(msg, m) {
				return row.reason
			}
		}
	}
	return domain.ReasonGeneric
}
