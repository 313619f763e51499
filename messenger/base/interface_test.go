package base

import (
	"context"
	"testing"

	"github.com/EPecherkin/catty-bills/apperr"
)

func TestUnconfiguredIsUnavailable(t *testing.T) {
	var client Client = Unconfigured{}
	ctx := context.Background()

	if err := client.SendText(ctx, 1, "hi"); !apperr.Is(err, apperr.UpstreamUnavailable) {
		t.Fatalf("SendText = %v", err)
	}
	if _, err := client.BotInfo(ctx); !apperr.Is(err, apperr.UpstreamUnavailable) {
		t.Fatalf("BotInfo = %v", err)
	}
	if _, err := client.Download(ctx, "file"); !apperr.Is(err, apperr.UpstreamUnavailable) {
		t.Fatalf("Download = %v", err)
	}
}
