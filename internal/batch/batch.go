// Package batch builds all packages below the packages directory in
// dependency order, parallelizing builds of independent packages.
package batch

import (
	"context"
	"io/ioutil"
	"log"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/scidist/scidist/internal/env"
	"github.com/scidist/scidist/internal/manifest"
	"github.com/scidist/scidist/internal/recipe"
	"github.com/scidist/scidist/internal/trace"
)

type node struct {
	id int64

	pkg    string // e.g. eclib
	recipe *recipe.Recipe
}

func (n *node) ID() int64 { return n.id }

// Ctx is a batch build context, containing configuration and state.
type Ctx struct {
	Log     *log.Logger
	Root    env.Root
	Prefix  string
	Rebuild bool // build even when the installed version is current

	// BuildFunc builds a single package. It is invoked from multiple worker
	// goroutines, one package per call.
	BuildFunc func(ctx context.Context, r *recipe.Recipe) error
}

func (c *Ctx) Build(ctx context.Context, dryRun bool, jobs int) error {
	c.Log.Printf("root %q", string(c.Root))

	g := simple.NewDirectedGraph()

	fis, err := ioutil.ReadDir(c.Root.PackagesDir())
	if err != nil {
		return err
	}
	byPkg := make(map[string]*node) // e.g. eclib
	for idx, fi := range fis {
		if !fi.IsDir() {
			continue
		}
		pkg := fi.Name()
		r, err := recipe.Load(c.Root.RecipePath(pkg))
		if err != nil {
			return xerrors.Errorf("loading recipe for %s: %v", pkg, err)
		}
		if !c.Rebuild {
			if m, err := c.installed(pkg); err == nil && m.Version == r.Version {
				continue // package already built
			}
		}
		n := &node{
			id:     int64(idx),
			pkg:    pkg,
			recipe: r,
		}
		byPkg[n.pkg] = n
		g.AddNode(n)
	}

	// add all constraints: <pkg> depends on <dep>
	for _, n := range byPkg {
		for _, dep := range n.recipe.Deps {
			if dep == n.pkg {
				continue // skip adding self edges
			}
			if d, ok := byPkg[dep]; ok {
				g.SetEdge(g.NewEdge(n, d))
			}
			// dependency already built (or not managed by us)
		}
	}

	// Break cycles
	if _, err := topo.Sort(g); err != nil {
		uo, ok := err.(topo.Unorderable)
		if !ok {
			return err
		}
		for _, component := range uo { // cyclic component
			for _, n := range component {
				c.Log.Printf("  bootstrap %v", n.(*node).pkg)
				from := g.From(n.ID())
				for from.Next() {
					g.RemoveEdge(n.ID(), from.Node().ID())
				}
			}
		}
		if _, err := topo.Sort(g); err != nil {
			return xerrors.Errorf("could not break cycles: %v", err)
		}
	}

	if dryRun {
		if g.Nodes() == nil {
			c.Log.Printf("build 0 pkg")
			return nil
		}
		c.Log.Printf("build %d pkg", g.Nodes().Len())
		for it := g.Nodes(); it.Next(); {
			c.Log.Printf("  build %s", it.Node().(*node).pkg)
		}
		return nil
	}

	s := scheduler{
		log:     c.Log,
		workers: jobs,
		g:       g,
		byPkg:   byPkg,
		build:   c.BuildFunc,
		built:   make(map[string]error),
	}
	return s.run(ctx)
}

func (c *Ctx) installed(pkg string) (*manifest.Manifest, error) {
	return manifest.Read(c.Prefix, pkg)
}

type buildResult struct {
	node *node
	err  error
}

type scheduler struct {
	log     *log.Logger
	workers int
	g       graph.Directed
	byPkg   map[string]*node
	build   func(ctx context.Context, r *recipe.Recipe) error
	built   map[string]error
}

func (s *scheduler) run(ctx context.Context) error {
	numNodes := 0
	if nodes := s.g.Nodes(); nodes != nil {
		numNodes = nodes.Len()
	}
	if numNodes == 0 {
		s.log.Printf("all packages up to date")
		return nil
	}
	work := make(chan *node, numNodes)
	done := make(chan buildResult)
	eg, ctx := errgroup.WithContext(ctx)

	for i := 0; i < s.workers; i++ {
		i := i // copy
		eg.Go(func() error {
			for n := range work {
				if err := ctx.Err(); err != nil {
					return err
				}
				// tid 0 is the single-package pipeline; workers get
				// their own trace rows.
				ev := trace.Event("build "+n.pkg, i+1)
				err := s.build(ctx, n.recipe)
				ev.Done()
				select {
				case done <- buildResult{node: n, err: err}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	// Enqueue all packages which have no dependencies to get the build started:
	for nodes := s.g.Nodes(); nodes.Next(); {
		n := nodes.Node()
		if s.g.From(n.ID()).Len() == 0 {
			select {
			case work <- n.(*node):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	go func() {
		defer close(work)
		for len(s.built) < numNodes { // scheduler tick
			select {
			case result := <-done:
				n := result.node
				s.built[n.pkg] = result.err

				if result.err == nil {
					for to := s.g.To(n.ID()); to.Next(); {
						if candidate := to.Node(); s.canBuild(candidate) {
							work <- candidate.(*node)
						}
					}
				} else {
					s.log.Printf("build of %s failed: %v", n.pkg, result.err)
					s.markFailed(n)
				}

			case <-ctx.Done():
				return
			}
		}
	}()
	if err := eg.Wait(); err != nil {
		return err
	}

	var failed []string
	for pkg, result := range s.built {
		if result != nil {
			failed = append(failed, pkg)
		}
	}
	s.log.Printf("%d packages succeeded, %d failed, %d total",
		len(s.built)-len(failed), len(failed), len(s.built))
	if len(failed) > 0 {
		sort.Strings(failed)
		return xerrors.Errorf("failed to build: %s", strings.Join(failed, ", "))
	}
	return nil
}

// markFailed propagates a failure to all packages depending on n, so that the
// scheduler tick loop terminates without ever enqueueing them.
func (s *scheduler) markFailed(n graph.Node) {
	for to := s.g.To(n.ID()); to.Next(); {
		d := to.Node()
		pkg := d.(*node).pkg
		if err, ok := s.built[pkg]; ok && err == nil {
			s.log.Fatalf("BUG: %s already succeeded, but dependencies cannot be fulfilled", pkg)
		}
		if _, ok := s.built[pkg]; !ok {
			s.built[pkg] = xerrors.Errorf("dependencies cannot be fulfilled")
		}
		s.markFailed(d)
	}
}

// canBuild returns whether all dependencies of candidate are built, and the
// candidate has not been scheduled yet.
func (s *scheduler) canBuild(candidate graph.Node) bool {
	if _, ok := s.built[candidate.(*node).pkg]; ok {
		return false
	}
	for from := s.g.From(candidate.ID()); from.Next(); {
		pkg := from.Node().(*node).pkg
		if err, ok := s.built[pkg]; !ok || err != nil {
			return false
		}
	}
	return true
}
