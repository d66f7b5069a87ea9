package server

// ANSI colours for the development route log.
const (
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
	Gray    = "\033[90m"

	ResetColor = "\033[0m"
)

var methodColors = map[string]string{
	"GET":     Green,
	"POST":    Yellow,
	"PUT":     Blue,
	"PATCH":   Cyan,
	"DELETE":  Red,
	"OPTIONS": Magenta,
}
