package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"photocritique/internal/client"
)

func main() {
	server := flag.String("server", envOr("CRITIQUE_SERVER", "http://localhost:8080"), "critique API base URL")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: critique [-server URL] <image>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	img, err := client.ParseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(*server)

	preview, err := c.Upload(ctx, img)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error uploading: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Processed %s (%d → %d bytes, %dx%d)\n",
		img.Name,
		preview.ProcessedImage.OriginalSize,
		preview.ProcessedImage.ProcessedSize,
		preview.ProcessedImage.Width,
		preview.ProcessedImage.Height,
	)

	data, mimeType, err := decodeDataURL(preview.ProcessedImage.DataURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding preview: %v\n", err)
		os.Exit(1)
	}

	result, err := c.Critique(ctx, img.Name, mimeType, data, preview.ExifData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, section := range []struct{ title, body string }{
		{"技術", result.Technique},
		{"構図", result.Composition},
		{"色彩", result.Color},
		{"総評", result.Overall},
	} {
		if section.body == "" {
			continue
		}
		fmt.Printf("\n【%s】\n%s\n", section.title, section.body)
	}

	fmt.Printf("\nShare: %s\n", result.ShareURL)
	fmt.Printf("Expires: %s\n", result.ExpiresAt.Local().Format("2006-01-02 15:04"))
	fmt.Printf("Delete token: %s\n", result.DeletionToken)
}

func decodeDataURL(s string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, "", fmt.Errorf("not a base64 data URL")
	}
	mimeType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", err
	}
	return data, mimeType, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
