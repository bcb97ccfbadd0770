package telegram

import (
	"testing"

	"defiwatch-telegram-bot/internal/types"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

func asDispatch(t *testing.T, err error) *types.DispatchError {
	t.Helper()
	var de *types.DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("expected dispatch error, got %v", err)
	}
	return de
}

func TestClassifyErrorPermanentOn4xx(t *testing.T) {
	cases := []int{400, 403, 404}
	for _, code := range cases {
		err := classifyError(&tgbotapi.Error{Code: code, Message: "chat not found"}, "delivery failed")
		if de := asDispatch(t, err); de.Transient {
			t.Fatalf("telegram %d must be permanent, got transient", code)
		}
	}
}

func TestClassifyErrorTransientOn5xxAnd429(t *testing.T) {
	cases := []int{500, 502, 429}
	for _, code := range cases {
		err := classifyError(&tgbotapi.Error{Code: code, Message: "try later"}, "delivery failed")
		if de := asDispatch(t, err); !de.Transient {
			t.Fatalf("telegram %d must be transient, got permanent", code)
		}
	}
}

func TestClassifyErrorTransportFailureIsTransient(t *testing.T) {
	err := classifyError(errors.New("connection reset"), "delivery failed")
	if de := asDispatch(t, err); !de.Transient {
		t.Fatalf("transport failures must be transient")
	}
}

func TestClassifyErrorCarriesAPIDetails(t *testing.T) {
	err := classifyError(&tgbotapi.Error{Code: 403, Message: "bot was blocked"}, "delivery failed")
	de := asDispatch(t, err)
	if de.Msg != "delivery failed (telegram 403: bot was blocked)" {
		t.Fatalf("unexpected message: %q", de.Msg)
	}
}

func TestResolveTargetNumericID(t *testing.T) {
	b := &Bot{}
	chatID, err := b.resolveTarget("-1001234567890")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chatID != -1001234567890 {
		t.Fatalf("expected parsed chat id, got %d", chatID)
	}
}

func TestResolveTargetRejectsInvalid(t *testing.T) {
	b := &Bot{}
	_, err := b.resolveTarget("not-a-chat")
	de := asDispatch(t, err)
	if de.Transient {
		t.Fatalf("an invalid target will never deliver, must be permanent")
	}
}
