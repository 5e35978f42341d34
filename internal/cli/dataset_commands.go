package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"capset/internal/coco"
)

var (
	lookupLabelStyle = lipgloss.NewStyle().Bold(true)
	lookupMissStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type mergeView struct {
	Out         string `json:"out"`
	Images      int    `json:"images"`
	Annotations int    `json:"annotations"`
}

func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	first := fs.String("first", "", "base MSCOCO captions file (.json)")
	second := fs.String("second", "", "captions file appended after --first (.json)")
	out := fs.String("out", "", "merged output file (.json)")
	yes := fs.Bool("yes", false, "overwrite --out without asking")
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	for _, p := range []struct{ flag, path string }{
		{"--first", *first}, {"--second", *second}, {"--out", *out},
	} {
		if strings.TrimSpace(p.path) == "" {
			return fmt.Errorf("%s is required", p.flag)
		}
		if err := requireJSONPath(p.path, p.flag); err != nil {
			return err
		}
	}
	if err := requireFile(*first, "--first"); err != nil {
		return err
	}
	if err := requireFile(*second, "--second"); err != nil {
		return err
	}
	if absPath(*out) == absPath(*first) || absPath(*out) == absPath(*second) {
		return errors.New("--out must differ from the input files")
	}
	if err := requireParentDir(*out, "--out"); err != nil {
		return err
	}
	if err := confirmOverwrite(*out, "output", *yes); err != nil {
		return err
	}

	a, err := coco.Load(*first)
	if err != nil {
		return err
	}
	b, err := coco.Load(*second)
	if err != nil {
		return err
	}
	merged := coco.Merge(a, b)
	if err := coco.Save(*out, merged); err != nil {
		return err
	}

	view := mergeView{
		Out:         *out,
		Images:      len(merged.Images),
		Annotations: len(merged.Annotations),
	}
	if *jsonOut {
		return printJSON(view)
	}
	fmt.Printf("merged %s + %s -> %s\n", *first, *second, *out)
	fmt.Printf("images: %d\n", view.Images)
	fmt.Printf("annotations: %d\n", view.Annotations)
	return nil
}

func runLookup(args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	cocoPath := fs.String("coco", "", "MSCOCO captions file (.json)")
	images := fs.String("images", "", "comma-separated image directories searched in order")
	num := fs.Int("num", -1, "annotation position (0-based)")
	altPath := fs.String("alt-coco", "", "optional parallel captions file read at the same position")
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if strings.TrimSpace(*cocoPath) == "" {
		return errors.New("--coco is required")
	}
	if *num < 0 {
		return errors.New("--num must be >= 0")
	}
	if err := requireFile(*cocoPath, "--coco"); err != nil {
		return err
	}

	ds, err := coco.Load(*cocoPath)
	if err != nil {
		return err
	}
	var alt *coco.Dataset
	if strings.TrimSpace(*altPath) != "" {
		loaded, err := coco.Load(*altPath)
		if err != nil {
			return err
		}
		alt = &loaded
	}

	res, err := coco.Lookup(ds, *num, splitList(*images), alt)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(res)
	}

	fmt.Printf("%s %d\n", lookupLabelStyle.Render("annotation:"), res.Annotation.ID)
	fmt.Printf("%s %s\n", lookupLabelStyle.Render("caption:"), res.Annotation.Caption)
	if res.AltCaption != "" {
		fmt.Printf("%s %s\n", lookupLabelStyle.Render("alt_caption:"), res.AltCaption)
	}
	fmt.Printf("%s %d (%s, %dx%d)\n", lookupLabelStyle.Render("image:"), res.Image.ID, res.Image.FileName, res.Image.Width, res.Image.Height)
	if res.ImagePath != "" {
		fmt.Printf("%s %s\n", lookupLabelStyle.Render("path:"), res.ImagePath)
	} else {
		fmt.Println(lookupMissStyle.Render("path: not found in --images"))
	}
	return nil
}
