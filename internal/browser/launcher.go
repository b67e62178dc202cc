package browser

import (
	"fmt"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/adscanner-go/internal/config"
	"github.com/Rorqualx/adscanner-go/internal/security"
)

// newLauncher builds a Chrome launcher from cfg. Ad networks serve different
// creatives to browsers that look automated, so the flags keep the
// automation markers off.
func newLauncher(cfg *config.Config) *launcher.Launcher {
	l := launcher.New()

	if cfg.BrowserPath != "" {
		l = l.Bin(cfg.BrowserPath)
	}

	if cfg.Headless {
		l = l.Set("headless", "new")
	} else {
		// Rod enables headless by default.
		l = l.Headless(false)
	}

	// Container flags
	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")

	if cfg.HasProxy() {
		l = l.Set("proxy-server", cfg.ProxyURL)
		log.Debug().Str("proxy", security.RedactProxyURL(cfg.ProxyURL)).Msg("Browser proxy configured")
	}

	l = l.Set("force-webrtc-ip-handling-policy", "disable_non_proxied_udp")

	// Anti-detection
	l = l.Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation").
		Set("disable-features", "Translate,TranslateUI,WebRtcHideLocalIpsWithMdns")

	if cfg.IgnoreCertErrors {
		l = l.Set("ignore-certificate-errors").
			Set("ignore-ssl-errors")
	}

	l = l.Set("accept-lang", "en-US,en;q=0.9").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("disable-search-engine-choice-screen").
		Set("window-size", fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight))

	// Stability
	l = l.Set("disable-background-networking").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-sync").
		Set("mute-audio").
		Set("disable-renderer-backgrounding").
		Set("disable-background-timer-throttling")

	if isARM() {
		l = l.Set("disable-gpu-compositing")
	}

	return l
}

func isARM() bool {
	arch := runtime.GOARCH
	return arch == "arm" || arch == "arm64"
}
