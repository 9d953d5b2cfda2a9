package main

import (
	"context"
	"fmt"
	"os"

	"stash/internal/client"
)

func main() {
	opts, err := client.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	c := client.New(opts.ServerURL, opts.Username, opts.Password)
	ctx := context.Background()

	switch opts.Command {
	case "upload":
		paths, err := client.ExpandPaths(opts.Paths)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		files, err := c.Upload(ctx, paths)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error uploading: %v\n", err)
			os.Exit(1)
		}
		for _, f := range files {
			fmt.Printf("%s  %s  %d bytes  %s\n", f.ID, f.Filename, f.Size, f.ContentType)
		}

	case "fetch":
		dest, err := c.Fetch(ctx, opts.ID, opts.Output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", dest)

	case "info":
		info, err := c.Info(ctx, opts.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("id:           %s\n", info.ID)
		fmt.Printf("filename:     %s\n", info.Filename)
		fmt.Printf("content type: %s\n", info.ContentType)
		fmt.Printf("size:         %d bytes\n", info.Size)
	}
}
