package host

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"sirius/internal/compute"
)

// KernelFunc prepares one dispatch. It validates the bound arguments and
// returns the per-work-item function.
type KernelFunc func(inv *Invocation) (func(gid int), error)

type kernelDef struct {
	arity int
	fn    KernelFunc
}

var (
	kernelsMu sync.RWMutex
	kernels   = map[string]kernelDef{}
)

// RegisterKernel makes a Go implementation available to programs whose
// source declares a __kernel with the same name.
func RegisterKernel(name string, arity int, fn KernelFunc) {
	kernelsMu.Lock()
	defer kernelsMu.Unlock()
	kernels[name] = kernelDef{arity: arity, fn: fn}
}

func lookupKernel(name string) (kernelDef, bool) {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	k, ok := kernels[name]
	return k, ok
}

var kernelDecl = regexp.MustCompile(`__kernel\s+void\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// Defines are the -D macros a program was built with.
type Defines map[string]string

// Float returns the named define as a number, or def when absent.
func (d Defines) Float(name string, def float64) float64 {
	s, ok := d[name]
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

// Program is a host program. Building resolves the declared kernels against
// the registered Go implementations.
type Program struct {
	source     string
	deviceName string
	defines    Defines
	exported   map[string]bool
	built      bool
	released   bool
}

func (p *Program) Build(options string) error {
	if p.released {
		return errReleased
	}
	var log strings.Builder
	defines, err := parseOptions(options)
	if err != nil {
		fmt.Fprintf(&log, "error: %v\n", err)
	}
	exported := map[string]bool{}
	for _, m := range kernelDecl.FindAllStringSubmatch(p.source, -1) {
		name := m[1]
		if _, ok := lookupKernel(name); !ok {
			fmt.Fprintf(&log, "error: kernel %q has no host implementation\n", name)
			continue
		}
		exported[name] = true
	}
	if len(exported) == 0 && log.Len() == 0 {
		log.WriteString("error: source declares no __kernel functions\n")
	}
	if log.Len() > 0 {
		return &compute.BuildError{Device: p.deviceName, Log: log.String()}
	}
	p.defines = defines
	p.exported = exported
	p.built = true
	return nil
}

// parseOptions accepts -cl-* flags and -D NAME[=VALUE] defines.
func parseOptions(options string) (Defines, error) {
	defines := Defines{}
	fields := strings.Fields(options)
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case strings.HasPrefix(f, "-cl-"):
		case f == "-D":
			if i+1 >= len(fields) {
				return nil, fmt.Errorf("missing macro name after -D")
			}
			i++
			if err := addDefine(defines, fields[i]); err != nil {
				return nil, err
			}
		case strings.HasPrefix(f, "-D"):
			if err := addDefine(defines, f[2:]); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unsupported build option %q", f)
		}
	}
	return defines, nil
}

var macroName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func addDefine(defines Defines, def string) error {
	name, value, found := strings.Cut(def, "=")
	if !found {
		value = "1"
	}
	if !macroName.MatchString(name) {
		return fmt.Errorf("invalid macro name %q", name)
	}
	if value == "" {
		return fmt.Errorf("empty value for macro %s", name)
	}
	defines[name] = value
	return nil
}

func (p *Program) CreateKernel(name string) (compute.Kernel, error) {
	if p.released {
		return nil, errReleased
	}
	if !p.built {
		return nil, fmt.Errorf("creating kernel %q: program is not built", name)
	}
	if !p.exported[name] {
		return nil, fmt.Errorf("creating kernel %q: no such kernel in program", name)
	}
	def, _ := lookupKernel(name)
	return &Kernel{name: name, fn: def.fn, args: make([]any, def.arity), defines: p.defines}, nil
}

// Defines returns the macros the program was built with.
func (p *Program) Defines() Defines { return p.defines }

func (p *Program) Release() { p.released = true }

// Kernel is a bound host kernel.
type Kernel struct {
	name     string
	fn       KernelFunc
	args     []any
	defines  Defines
	released bool
}

func (k *Kernel) SetArg(index int, arg any) error {
	if k.released {
		return errReleased
	}
	if index < 0 || index >= len(k.args) {
		return fmt.Errorf("kernel %s: invalid argument index %d", k.name, index)
	}
	switch arg.(type) {
	case *Buffer, *Image, int32, uint32, float32:
	default:
		return fmt.Errorf("kernel %s: invalid argument %d of type %T", k.name, index, arg)
	}
	k.args[index] = arg
	return nil
}

func (k *Kernel) Release() { k.released = true }

func (k *Kernel) invocation(global int) (*Invocation, error) {
	if k.released {
		return nil, errReleased
	}
	for i, a := range k.args {
		if a == nil {
			return nil, fmt.Errorf("kernel %s: argument %d is not set", k.name, i)
		}
	}
	return &Invocation{Args: k.args, Defines: k.defines, Global: global}, nil
}

// Invocation is what a kernel sees for one dispatch.
type Invocation struct {
	Args    []any
	Defines Defines
	Global  int
}

func (inv *Invocation) Buffer(i int) (*Buffer, error) {
	b, ok := inv.Args[i].(*Buffer)
	if !ok {
		return nil, fmt.Errorf("argument %d: want buffer, have %T", i, inv.Args[i])
	}
	if b.released {
		return nil, errReleased
	}
	return b, nil
}

func (inv *Invocation) Image(i int) (*Image, error) {
	im, ok := inv.Args[i].(*Image)
	if !ok {
		return nil, fmt.Errorf("argument %d: want image, have %T", i, inv.Args[i])
	}
	if im.released {
		return nil, errReleased
	}
	return im, nil
}
