package query

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/runegraph/pkg/concurrent"
	"github.com/orneryd/runegraph/pkg/query/frontend"
	"github.com/orneryd/runegraph/pkg/query/plan"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/value"
)

// ParameterError reports a $name reference with no caller binding.
type ParameterError struct {
	Name string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("unprovided parameter $%s", e.Name)
}

// Options configures an Interpreter.
type Options struct {
	// CostPlanner enables cost-based plan search instead of the written
	// left-to-right order.
	CostPlanner bool
	// PlanCache enables caching compiled plans by stripped hash.
	PlanCache bool
	// PlanCacheTTL bounds the age of cached plans; zero means no bound.
	PlanCacheTTL time.Duration
	// Auth handles user-administration statements.
	Auth plan.AuthService
	// Streams handles stream-administration statements.
	Streams plan.StreamRegistry
}

// parsedQuery is a parse result shared across plan compilations, so runs
// with plan caching disabled still skip re-parsing repeated queries.
type parsedQuery struct {
	Storage *frontend.AstStorage
	Root    frontend.Ref
	Symbols *frontend.SymbolTable
}

// Interpreter compiles and executes queries. It is safe for concurrent
// use; each invocation carries its own accessor and frame while the plan
// and AST caches are shared.
type Interpreter struct {
	opts  Options
	cache *PlanCache
	asts  *concurrent.Map[uint64, *parsedQuery]
}

// NewInterpreter returns an interpreter with fresh caches.
func NewInterpreter(opts Options) *Interpreter {
	return &Interpreter{
		opts:  opts,
		cache: NewPlanCache(opts.PlanCacheTTL),
		asts:  concurrent.NewMap[uint64, *parsedQuery](),
	}
}

// Cache exposes the shared plan cache.
func (in *Interpreter) Cache() *PlanCache { return in.cache }

var streamShowHeader = []string{"name", "topic", "transform", "batch_size", "is_running"}

// Interpret compiles query, executes it against acc and forwards header,
// rows and a summary to stream. Errors discovered before execution return
// without emitting anything; errors mid-execution abort the pull loop and
// withhold the summary.
func (in *Interpreter) Interpret(ctx context.Context, queryText string, acc *storage.Accessor, stream ResultStream, params map[string]value.Value, inExplicitTransaction bool) error {
	parseStart := time.Now()
	stripped, err := Strip(queryText)
	if err != nil {
		return err
	}

	positional, err := stripped.ResolveParameters(params)
	if err != nil {
		return err
	}

	cached, hit := in.cache.Lookup(stripped.Hash)
	parsingTime := time.Since(parseStart)

	var planningTime time.Duration
	if !hit {
		parsed, err := in.parse(stripped)
		if err != nil {
			return err
		}
		parsingTime = time.Since(parseStart)

		planStart := time.Now()
		tree, cost, err := plan.Plan(parsed.Storage, parsed.Symbols, parsed.Root, acc, in.opts.CostPlanner)
		if err != nil {
			return err
		}
		planningTime = time.Since(planStart)

		cached = &CachedPlan{Tree: tree, Cost: cost, Storage: parsed.Storage, Symbols: parsed.Symbols, Created: time.Now()}
		if in.opts.PlanCache {
			cached = in.cache.Insert(stripped.Hash, cached)
			logrus.WithFields(logrus.Fields{
				"hash": stripped.Hash,
				"cost": cached.Cost,
			}).Debug("cached query plan")
		}
	}

	if cached.Tree.Admin() && inExplicitTransaction {
		return &plan.RuntimeError{Message: "administrative statements cannot run in explicit transactions"}
	}

	execCtx := &plan.Context{
		Ctx:     ctx,
		Storage: cached.Storage,
		Symbols: cached.Symbols,
		Params:  plan.Parameters{Positional: positional, Named: params},
		Acc:     acc,
		Auth:    in.opts.Auth,
		Streams: in.opts.Streams,
	}

	execStart := time.Now()
	if err := in.execute(cached.Tree, stripped, acc, stream, execCtx); err != nil {
		return err
	}
	execTime := time.Since(execStart)

	// Later statements in the same transaction must see this one's writes.
	if plan.TreeWrites(cached.Tree) {
		acc.AdvanceCommand()
	}

	if acc.IndexCreated() {
		in.cache.Clear()
		logrus.Debug("index created, plan cache invalidated")
	}

	summary := map[string]value.Value{
		"parsing_time":        value.Float(parsingTime.Seconds()),
		"planning_time":       value.Float(planningTime.Seconds()),
		"plan_execution_time": value.Float(execTime.Seconds()),
		"cost_estimate":       value.Float(cached.Cost),
		"type":                value.String(queryType(cached.Tree)),
	}
	return stream.Summary(summary)
}

// parse returns the shared parse result for a stripped query, parsing and
// generating symbols on first sight of its hash.
func (in *Interpreter) parse(stripped *Stripped) (*parsedQuery, error) {
	acc := in.asts.Access()
	if p, ok := acc.Find(stripped.Hash); ok {
		return p, nil
	}
	st, root, err := frontend.Parse(stripped.Query)
	if err != nil {
		return nil, err
	}
	table, err := frontend.GenerateSymbols(st, root)
	if err != nil {
		return nil, err
	}
	p, _ := acc.Insert(stripped.Hash, &parsedQuery{Storage: st, Root: root, Symbols: table})
	return p, nil
}

// execute streams the plan's output. A Produce root emits a header and one
// result per pulled row; write and admin roots drain silently under an
// empty header. SHOW STREAMS is the one admin statement with rows of its
// own, assembled from the registry after the cursor ran.
func (in *Interpreter) execute(root plan.Operator, stripped *Stripped, acc *storage.Accessor, stream ResultStream, execCtx *plan.Context) error {
	switch op := root.(type) {
	case *plan.Produce:
		items := op.OutputItems()
		names := make([]string, len(items))
		symbols := make([]int, len(items))
		for i, it := range items {
			if text, ok := stripped.TextForms[it.TokenPos]; ok {
				names[i] = text
			} else {
				names[i] = it.Name
			}
			symbols[i] = it.Symbol
		}
		if err := stream.Header(names); err != nil {
			return err
		}
		cursor := root.MakeCursor(acc)
		frame := plan.NewFrame(execCtx.Symbols.MaxPosition())
		for {
			ok, err := cursor.Pull(frame, execCtx)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			row := make([]value.Value, len(symbols))
			for i, sym := range symbols {
				row[i] = frame[sym]
			}
			if err := stream.Result(row); err != nil {
				return err
			}
		}
	default:
		if !root.Admin() && !plan.TreeWrites(root) {
			return &plan.RuntimeError{Message: "unknown top-level operator"}
		}
		showStreams := false
		if sh, ok := root.(*plan.StreamHandler); ok && sh.Action == frontend.StreamShow {
			showStreams = true
		}
		header := []string(nil)
		if showStreams {
			header = streamShowHeader
		}
		if err := stream.Header(header); err != nil {
			return err
		}
		cursor := root.MakeCursor(acc)
		frame := plan.NewFrame(execCtx.Symbols.MaxPosition())
		for {
			ok, err := cursor.Pull(frame, execCtx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
		}
		if showStreams {
			for _, info := range execCtx.Streams.ShowStreams() {
				row := []value.Value{
					value.String(info.Name),
					value.String(info.Topic),
					value.String(info.Transform),
					value.Int(info.BatchSize),
					value.Bool(info.Running),
				}
				if err := stream.Result(row); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// queryType classifies the executed plan for the summary: "r" for pure
// reads, "w" for pure writes and administration, "rw" for both.
func queryType(root plan.Operator) string {
	reads := plan.TreeReads(root)
	writes := plan.TreeWrites(root) || root.Admin()
	switch {
	case reads && writes:
		return "rw"
	case writes:
		return "w"
	default:
		return "r"
	}
}
