package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieGuide writes step-by-step instructions for copying the pixiv
// cookie out of a browser
func ShowCookieGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "PIXIV COOKIE GUIDE")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "pixivcrawl reads the author listing and artwork data with your")
	fmt.Fprintln(w, "browser session. Copy it like this:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. Log in at https://www.pixiv.net")
	fmt.Fprintln(w, "  2. Open Developer Tools (F12, or Cmd+Option+I on Mac)")
	fmt.Fprintln(w, "  3. Network tab, reload the page, click any request to www.pixiv.net")
	fmt.Fprintln(w, "  4. Under Request Headers copy the whole value of 'Cookie:'")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The value must contain PHPSESSID=<digits>_<letters>. Without it")
	fmt.Fprintln(w, "pixiv hides R-18 and follower-only works.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The cookie gives full access to your account. It is stored in the")
	fmt.Fprintln(w, "system keychain or an encrypted file, never in plain text.")
	fmt.Fprintln(w, rule)
}

// ShowQuickGuide writes the one-line version
func ShowQuickGuide(w io.Writer) {
	fmt.Fprintln(w, "F12 -> Network -> reload -> any www.pixiv.net request -> Request Headers -> Cookie")
	fmt.Fprintln(w, "Type 'help' for detailed instructions")
}
