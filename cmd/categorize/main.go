// Command categorize labels transaction descriptions read from stdin, one
// per line, using a taxonomy file or a built-in rule table.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"fintrack/internal/categorize"
	"fintrack/internal/taxonomy"
)

type options struct {
	file    string
	builtin string
	explain bool
	dump    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.file, "file", "", "taxonomy YAML file (overrides -builtin)")
	flag.StringVar(&opts.builtin, "builtin", "default", "built-in rule table: default or basic")
	flag.BoolVar(&opts.explain, "explain", false, "print the matching rule index and keyword")
	flag.BoolVar(&opts.dump, "dump", false, "print the active taxonomy as YAML and exit")
	flag.Parse()

	if err := run(opts, flag.Args(), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "categorize:", err)
		os.Exit(1)
	}
}

// run categorizes args when given, otherwise every stdin line.
func run(opts options, args []string, in io.Reader, out io.Writer) error {
	t, err := loadTaxonomy(opts)
	if err != nil {
		return err
	}

	if opts.dump {
		data, err := taxonomy.Marshal(t)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	w := bufio.NewWriter(out)
	if len(args) > 0 {
		printResult(w, t, strings.Join(args, " "), opts.explain)
		return w.Flush()
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		printResult(w, t, sc.Text(), opts.explain)
	}
	if err := sc.Err(); err != nil {
		w.Flush()
		return err
	}
	return w.Flush()
}

func loadTaxonomy(opts options) (*categorize.Taxonomy, error) {
	if opts.file != "" {
		return taxonomy.LoadFile(opts.file)
	}
	return categorize.Builtin(opts.builtin)
}

func printResult(w io.Writer, t *categorize.Taxonomy, description string, explain bool) {
	if !explain {
		fmt.Fprintln(w, t.Categorize(description))
		return
	}
	res := t.Match(description)
	if !res.Matched() {
		fmt.Fprintf(w, "%s\t-\t-\n", res.Category)
		return
	}
	fmt.Fprintf(w, "%s\t%d\t%s\n", res.Category, res.RuleIndex, res.Keyword)
}
