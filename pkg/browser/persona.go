package browser

import (
	"math/rand"
)

// Persona is the identity a session presents to the site: user agent plus
// the spoofed navigator properties that hide automation markers.
type Persona struct {
	UserAgent      string
	AcceptLanguage string
}

// NewPersona picks a random user agent from the configured pool
func NewPersona(userAgents []string, acceptLanguage string) Persona {
	ua := ""
	if len(userAgents) > 0 {
		ua = userAgents[rand.Intn(len(userAgents))]
	}
	return Persona{UserAgent: ua, AcceptLanguage: acceptLanguage}
}

// stealthScript runs before any page script and papers over the properties
// headless automation is usually detected by: the webdriver flag, an empty
// plugin list, missing languages/platform and the absent chrome object.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => false });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
Object.defineProperty(navigator, 'languages', { get: () => ['ru-RU', 'ru'] });
Object.defineProperty(navigator, 'platform', { get: () => 'Win32' });
window.chrome = { runtime: {} };
`
