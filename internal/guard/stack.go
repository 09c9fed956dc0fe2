package guard

import (
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/conneroisu/perfguard/internal/dom"
)

// Method receivers whose frames are interception plumbing, not callers.
var plumbing = []string{
	pkgPath(New) + ".(*",
	pkgPath(dom.NewFacade) + ".(*Facade)",
}

func pkgPath(fn interface{}) string {
	name := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	slash := strings.LastIndex(name, "/")
	if dot := strings.Index(name[slash+1:], "."); dot >= 0 {
		return name[:slash+1+dot]
	}
	return name
}

type frame struct {
	function string
	file     string
	line     int
}

func (f frame) String() string {
	return fmt.Sprintf("%s (%s:%d)", f.function, filepath.Base(f.file), f.line)
}

func isPlumbing(function string) bool {
	for _, p := range plumbing {
		if strings.HasPrefix(function, p) {
			return true
		}
	}
	return false
}

// captureStack returns up to depth frames above the interception point.
func captureStack(depth int) []frame {
	pcs := make([]uintptr, depth+8)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	out := make([]frame, 0, depth)
	for {
		f, more := frames.Next()
		if f.Function != "" && !isPlumbing(f.Function) {
			out = append(out, frame{function: f.Function, file: f.File, line: f.Line})
			if len(out) == depth {
				break
			}
		}
		if !more {
			break
		}
	}
	return out
}

// trusted reports whether any frame belongs to a trusted caller prefix.
func trusted(stack []frame, prefixes []string) bool {
	for _, f := range stack {
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(f.function, p) {
				return true
			}
		}
	}
	return false
}

func formatStack(stack []frame) []string {
	out := make([]string, len(stack))
	for i, f := range stack {
		out[i] = f.String()
	}
	return out
}
