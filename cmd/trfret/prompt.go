package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rewired-gh/trfret/internal/models"
)

// prompter asks for one dataset description at a time on a terminal.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

// ask prints question and returns the trimmed answer. ok is false on end of input.
func (p *prompter) ask(question string) (string, bool) {
	fmt.Fprint(p.out, question)
	if !p.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.in.Text()), true
}

// dataset prompts for the next dataset, starting from defaults. It returns
// false when the user quits or input ends.
func (p *prompter) dataset(defaults models.DatasetConfig) (models.DatasetConfig, bool) {
	d := defaults

	for {
		question := "Enter path or 'q' to exit: "
		if defaults.Path != "" {
			question = fmt.Sprintf("Enter path or 'q' to exit (or press enter for '%s'): ", defaults.Path)
		}
		answer, ok := p.ask(question)
		if !ok || answer == "q" || answer == "Q" {
			return d, false
		}
		if answer != "" {
			d.Path = answer
		}
		if d.Path != "" {
			break
		}
		fmt.Fprintln(p.out, "A path is required.")
	}

	for {
		answer, ok := p.ask(fmt.Sprintf("Enter max concentration in µM (or press enter for '%g'): ", defaults.MaxConcentration))
		if !ok {
			return d, false
		}
		if answer == "" {
			break
		}
		v, err := strconv.ParseFloat(answer, 64)
		if err == nil && v > 0 {
			d.MaxConcentration = v
			break
		}
		fmt.Fprintln(p.out, "Invalid input, please enter a positive number.")
	}

	answer, ok := p.ask("Concentrations NOT in decreasing order? [y/Y for increasing] ")
	if !ok {
		return d, false
	}
	switch {
	case yes(answer):
		d.Ordering = models.Increasing
	case answer != "":
		d.Ordering = models.Decreasing
	}

	answer, ok = p.ask("Samples NOT in column format? [y/Y for row format] ")
	if !ok {
		return d, false
	}
	switch {
	case yes(answer):
		d.Orientation = models.RowOrientation
	case answer != "":
		d.Orientation = models.ColumnOrientation
	}

	for {
		answer, ok := p.ask(fmt.Sprintf("Enter dilution factor (or press enter for '%d'): ", defaults.DilutionFactor))
		if !ok {
			return d, false
		}
		if answer == "" {
			break
		}
		v, err := strconv.Atoi(answer)
		if err == nil && v >= 2 {
			d.DilutionFactor = v
			break
		}
		fmt.Fprintln(p.out, "Invalid input, please enter an integer of at least 2.")
	}

	return d, true
}

func yes(answer string) bool {
	return strings.ContainsAny(answer, "yY")
}
