package tool

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"toolbox/internal/capability"
	"toolbox/internal/capability/image"
	"toolbox/internal/elicitation"
	"toolbox/internal/sandbox"
)

// remediation pairs a lower-case substring of an error message with the
// next step shown to the user. Typed errors are checked before this table.
type remediation struct {
	pattern string
	hint    string
}

const (
	hintInstallAzure = "Install the Azure CLI (https://aka.ms/installazurecli) and make sure `az` is on PATH, or set tools.azure.cliPath."
	hintAzureLogin   = "Authenticate first with `az login`, then retry."
	hintNoSubs       = "The signed-in account has no subscriptions. Check `az account list` or sign in with a different account."
	hintImageKey     = "Check the image API key (tools.image.apiKey or OPENAI_API_KEY)."
	hintRateLimit    = "The upstream API is rate limiting requests. Wait a moment and retry."
	hintNetwork      = "Check network connectivity and the configured endpoint URL."
)

var remediations = []remediation{
	{"az: command not found", hintInstallAzure},
	{"'az' is not recognized", hintInstallAzure},
	{`"az": executable file not found`, hintInstallAzure},
	{"please run 'az login'", hintAzureLogin},
	{"run 'az login'", hintAzureLogin},
	{"not logged in", hintAzureLogin},
	{"no subscription found", hintNoSubs},
	{"no subscriptions found", hintNoSubs},
	{"invalid_api_key", hintImageKey},
	{"incorrect api key", hintImageKey},
	{"status 429", hintRateLimit},
	{"rate limit", hintRateLimit},
	{"no such host", hintNetwork},
	{"connection refused", hintNetwork},
}

// remediationHint returns an actionable next step for err, or "".
func remediationHint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, elicitation.ErrFailed), errors.Is(err, elicitation.ErrInFlight):
		return "Interactive selection is unavailable. Provide the parameter directly in the tool arguments instead."
	case errors.Is(err, sandbox.ErrTimeout):
		return "The command exceeded its time limit (tools.shell.timeout). Try a narrower command."
	case errors.Is(err, sandbox.ErrOutputTooLarge):
		return "The command produced more output than allowed (tools.shell.maxOutputBytes). Narrow it down."
	case errors.Is(err, image.ErrNoAPIKey), imageAuthFailure(err):
		return hintImageKey
	case errors.Is(err, context.DeadlineExceeded):
		return "The operation timed out. Retry, or raise the tool's timeout in the config."
	}

	msg := strings.ToLower(err.Error())
	for _, r := range remediations {
		if strings.Contains(msg, r.pattern) {
			return r.hint
		}
	}
	return ""
}

func imageAuthFailure(err error) bool {
	var he *capability.HTTPError
	if !errors.As(err, &he) || he.Service != image.Service {
		return false
	}
	return he.Status == http.StatusUnauthorized || he.Status == http.StatusForbidden
}
