package main

import "github.com/stupid-simple/assetpack/config"

type Command struct {
	Version struct{} `cmd:"" help:"Print version information."`
	Bundle  struct {
		Src           string              `help:"directory holding one sub directory per asset pack" short:"s" required:""`
		Out           string              `help:"directory receiving the pack documents and the catalog" short:"o"`
		URL           string              `help:"public URL the catalog is served from, required with --out" name:"url"`
		Bucket        string              `help:"storage bucket receiving the pack contents" short:"b" required:""`
		ContentServer string              `help:"content server URL serving stored objects by CID" required:""`
		Force         bool                `help:"upload every object even if already stored"`
		Database      string              `help:"upload ledger database path" short:"d"`
		WorkDir       string              `help:"directory for transcoded scenes, temporary when empty"`
		MaxFileSize   config.SizeArgument `help:"skip resource files larger than this size"`
		Hash          string              `help:"content identifier hash" enum:"sha2-256,blake3" default:"sha2-256"`
		UploadFailure string              `help:"what a failed upload does to its pack" enum:"drop-asset,reject-pack" default:"drop-asset"`
		NoTranscode   bool                `help:"keep textures embedded in scene files"`
		DryRun        bool                `help:"don't upload or write any files, just print the output"`
	} `cmd:"" help:"Bundle asset packs, upload their contents and write the catalog."`
	ImportCsv struct {
		Pack   string `help:"asset pack directory" short:"p" required:""`
		Src    string `help:"CSV file with folder, name, category and tags columns" short:"s" required:""`
		DryRun bool   `help:"don't write any files, just print the output"`
	} `cmd:"" name:"import-csv" help:"Write asset descriptors from a CSV file."`
	Daemon struct {
		Config   string `help:"config file path" short:"c" required:""`
		Database string `help:"upload ledger database path" short:"d" required:""`
		DryRun   bool   `help:"don't upload or write any files, just print the output"`
	} `cmd:"" help:"Run the scheduled bundling service."`
}
