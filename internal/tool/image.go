package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"toolbox/internal/capability/image"
	"toolbox/internal/domain"
)

const maxPromptLength = 4000

var (
	imageSizes     = []string{"256x256", "512x512", "1024x1024", "1792x1024", "1024x1792"}
	imageQualities = []string{"standard", "hd"}
)

// ImageTool is generateImage.
type ImageTool struct {
	generator    image.Generator
	defaultModel string
}

// NewImageTool uses defaultModel when the caller omits "model".
func NewImageTool(g image.Generator, defaultModel string) *ImageTool {
	if defaultModel == "" {
		defaultModel = "dall-e-3"
	}
	return &ImageTool{generator: g, defaultModel: defaultModel}
}

func (t *ImageTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "generateImage",
		Title:       "Generate Image",
		Description: "Generate images from a text prompt using an OpenAI-compatible image API. Returns image URLs or base64 data sizes.",
		Schema: Schema{Fields: []Field{
			{Name: "prompt", Type: TypeString, Required: true, MaxLength: maxPromptLength,
				Description: "Text description of the image"},
			{Name: "model", Type: TypeString, Default: t.defaultModel, MaxLength: 100,
				Description: "Image model"},
			{Name: "size", Type: TypeString, Default: "1024x1024", Enum: imageSizes,
				Description: "Image dimensions"},
			{Name: "quality", Type: TypeString, Default: "standard", Enum: imageQualities,
				Description: "Image quality"},
			{Name: "n", Type: TypeInteger, Min: Bound(1), Max: Bound(10), Default: 1,
				Description: "Number of images to generate (1-10)"},
		}},
	}
}

func (t *ImageTool) Handle(ctx context.Context, call *Call) (*domain.Result, error) {
	req := image.Request{
		Prompt:  call.Args.String("prompt"),
		Model:   call.Args.String("model"),
		Size:    call.Args.String("size"),
		Quality: call.Args.String("quality"),
		N:       call.Args.Int("n"),
	}
	resp, err := t.generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &domain.Result{}
	res.Content = append(res.Content, domain.Content{
		Type: "text",
		Text: fmt.Sprintf("Generated %d image(s) with %s (%s, %s).", len(resp.Data), req.Model, req.Size, req.Quality),
	})
	for i, img := range resp.Data {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Image %d: ", i+1)
		switch {
		case img.URL != "":
			sb.WriteString(img.URL)
		case img.B64JSON != "":
			fmt.Fprintf(&sb, "base64 PNG data, %d bytes decoded", base64.StdEncoding.DecodedLen(len(img.B64JSON)))
		default:
			sb.WriteString("(no data returned)")
		}
		if img.RevisedPrompt != "" {
			fmt.Fprintf(&sb, "\nRevised prompt: %s", img.RevisedPrompt)
		}
		res.Content = append(res.Content, domain.Content{Type: "text", Text: sb.String()})
	}
	return res, nil
}
