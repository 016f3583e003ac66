package diskcache

import "fmt"

// assertf enforces a precondition that spec §7 classifies as a fatal
// programmer error: a correct engine never trips these, so unlike the
// absent-piece/short-write/failed-hash cases (which are communicated
// through ordinary return values), a violation panics rather than
// returning an error.
func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("diskcache: "+format, args...))
	}
}
