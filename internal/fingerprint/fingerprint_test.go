package fingerprint

import (
	"testing"

	"github.com/bugshot/bugshot-go/pkg/event"
	"github.com/stretchr/testify/require"
)

func TestBrowser(t *testing.T) {
	for _, tc := range []struct {
		ua   string
		want event.BrowserInfo
	}{
		{
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want: event.BrowserInfo{Name: "Chrome", Version: "120", OS: "Windows"},
		},
		{
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			want: event.BrowserInfo{Name: "Edge", Version: "120", OS: "Windows"},
		},
		{
			ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want: event.BrowserInfo{Name: "Firefox", Version: "121", OS: "Linux"},
		},
		{
			ua:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
			want: event.BrowserInfo{Name: "Safari", Version: "17", OS: "macOS"},
		},
		{
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
			want: event.BrowserInfo{Name: "Safari", Version: "17", OS: "iOS"},
		},
		{
			ua:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			want: event.BrowserInfo{Name: "Chrome", Version: "120", OS: "Android"},
		},
		{
			ua:   "Go-http-client/1.1",
			want: event.BrowserInfo{Name: "Unknown", Version: "Unknown", OS: "Unknown"},
		},
	} {
		require.Equal(t, tc.want, Browser(tc.ua), tc.ua)
	}
}

func TestDevice(t *testing.T) {
	require.Equal(t, event.DeviceMobile, Device(event.Viewport{Width: 375, Height: 812}).Type)
	require.Equal(t, event.DeviceMobile, Device(event.Viewport{Width: 768}).Type)
	require.Equal(t, event.DeviceTablet, Device(event.Viewport{Width: 1024}).Type)
	require.Equal(t, event.DeviceDesktop, Device(event.Viewport{Width: 1025}).Type)

	d := Device(event.Viewport{Width: 1440, Height: 900})
	require.Equal(t, event.Viewport{Width: 1440, Height: 900}, d.Viewport)
}
