package gate

// Site paths the gate knows about.
const (
	PathAdmin       = "/admin"
	PathAdminPhotos = "/admin/photos"
	PathOG          = "/og"
	PathOGSample    = "/og/sample"
	PathLogin       = "/login"

	PrefixPhoto = "/p"
	PrefixTag   = "/tag"

	// RedirectedFromParam carries the originally requested path to the login page.
	RedirectedFromParam = "redirectedFrom"
)

var (
	// publicPrefixes are reachable without a session, including subpaths.
	publicPrefixes = []string{
		"/login",
		"/reset-password",
		"/forgot-password",
		"/auth/callback",
		"/setup",
		"/static/",
		"/_next/static/",
		"/favicons/",
	}

	// publicPaths are reachable without a session on exact match only.
	publicPaths = []string{
		"/favicon.ico",
		"/health",
		"/feed",
		"/grid",
		"/",
	}

	// protectedPrefixes stay protected when the gallery is not private.
	protectedPrefixes = []string{
		"/admin",
		"/api/auth/whoami",
		"/logout",
	}

	// imagePrefixes serve image bytes and are never public.
	imagePrefixes = []string{
		"/_next/image",
		"/api/protected-image/",
		"/api/presigned-url/",
	}

	// staticPrefixes and staticPaths bypass the gate entirely.
	staticPrefixes = []string{"/_next/static/", "/static/", "/favicons/"}
	staticPaths    = []string{"/favicon.ico"}
	staticExts     = []string{".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp"}
)
