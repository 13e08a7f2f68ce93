package httpserver

const HTTP_VERSION = "HTTP/1.1"

// 1xx
const STATUS_100 = "100 Continue"

// 2xx
const STATUS_200 = "200 OK"

// 3xx
const (
	STATUS_300 = "300 Multiple Choices"
	STATUS_301 = "301 Moved Permanently"
	STATUS_302 = "302 Found"
	STATUS_303 = "303 See Other"
	STATUS_304 = "304 Not Modified"
)

// 4xx
const (
	STATUS_400 = "400 Bad Request"
	STATUS_403 = "403 Forbidden"
	STATUS_404 = "404 Not Found"
	STATUS_411 = "411 Length Required"
	STATUS_413 = "413 Request Entity Too Large"
)

// 5xx
const (
	STATUS_500 = "500 Internal Server Error"
	STATUS_501 = "501 Not Implemented"
	STATUS_503 = "503 Service Unavailable"
)

const (
	CONTENT_TYPE_TEXT_PLAIN = "text/plain"
	CONTENT_TYPE_TEXT_XML   = "text/xml"
	CONTENT_TYPE_TEXT_HTML  = "text/html"
	CONTENT_TYPE_JSON       = "application/json"
	CONTENT_TYPE_IMAGE_GIF  = "image/gif"
)

const (
	headerConnection = "\r\nConnection: "
	headerKeepAlive  = "Keep-Alive"
	headerClose      = "close"
	headerLength     = "\r\nContent-Length: "
	headerSetCookie  = "\r\nSet-Cookie: "
	headerLocation   = "\r\nLocation: "
	cookieVersion    = "Version=\"1\""
	cookieExpires    = "Mon, 02-Jan-2006 15:04:05 MST"
)
