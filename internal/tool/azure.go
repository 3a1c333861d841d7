package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"toolbox/internal/capability/azure"
	"toolbox/internal/domain"
	"toolbox/internal/elicitation"
)

// AzureLister is the subset of azure.Client the Azure tools use.
type AzureLister interface {
	Subscriptions(ctx context.Context) ([]azure.Subscription, error)
	ResourceGroups(ctx context.Context, subscription string) ([]azure.ResourceGroup, error)
}

var errNoSubscriptions = errors.New("no subscriptions found for the signed-in account")

// SubscriptionsTool is listAzureSubscriptions.
type SubscriptionsTool struct {
	az AzureLister
}

func NewSubscriptionsTool(az AzureLister) *SubscriptionsTool {
	return &SubscriptionsTool{az: az}
}

func (t *SubscriptionsTool) Descriptor() Descriptor {
	return Descriptor{
		Name:        "listAzureSubscriptions",
		Title:       "List Azure Subscriptions",
		Description: "List the Azure subscriptions available to the account signed in to the Azure CLI.",
	}
}

func (t *SubscriptionsTool) Handle(ctx context.Context, call *Call) (*domain.Result, error) {
	subs, err := t.az.Subscriptions(ctx)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return domain.TextResult("No Azure subscriptions found for the signed-in account."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d Azure subscription(s):\n\n", len(subs))
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tSTATE\tDEFAULT")
	for _, s := range subs {
		def := ""
		if s.IsDefault {
			def = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.ID, s.State, def)
	}
	tw.Flush()
	return domain.TextResult(strings.TrimRight(sb.String(), "\n")), nil
}

// ResourceGroupsTool lists resource groups, asking the client which
// subscription to use when the choice is ambiguous.
type ResourceGroupsTool struct {
	az AzureLister
}

// NewResourceGroupsTool returns listAzureResourceGroups, which elicits a
// subscription when the caller does not name one.
func NewResourceGroupsTool(az AzureLister) *ResourceGroupsTool {
	return &ResourceGroupsTool{az: az}
}

func (t *ResourceGroupsTool) Descriptor() Descriptor {
	return Descriptor{
		Name:  "listAzureResourceGroups",
		Title: "List Azure Resource Groups",
		Description: "List resource groups in an Azure subscription. If no subscription is given and several " +
			"are available, the user is asked to pick one.",
		Schema: Schema{Fields: []Field{
			{Name: "subscription", Type: TypeString, MaxLength: 200,
				Description: "Subscription ID or name. Optional."},
		}},
	}
}

func (t *ResourceGroupsTool) Handle(ctx context.Context, call *Call) (*domain.Result, error) {
	sub := strings.TrimSpace(call.Args.String("subscription"))
	label := sub

	if sub == "" {
		subs, err := t.az.Subscriptions(ctx)
		if err != nil {
			return nil, err
		}
		switch len(subs) {
		case 0:
			return nil, errNoSubscriptions
		case 1:
			sub, label = subs[0].ID, subs[0].Name
		default:
			chosen, result, err := t.selectSubscription(ctx, call, subs)
			if err != nil || result != nil {
				return result, err
			}
			sub, label = chosen.ID, chosen.Name
		}
	}

	groups, err := t.az.ResourceGroups(ctx, sub)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return domain.TextResult(fmt.Sprintf("No resource groups found in subscription %s.", label)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d resource group(s) in subscription %s:\n\n", len(groups), label)
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLOCATION\tSTATE")
	for _, g := range groups {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", g.Name, g.Location, g.Properties.ProvisioningState)
	}
	tw.Flush()
	return domain.TextResult(strings.TrimRight(sb.String(), "\n")), nil
}

// selectSubscription elicits a choice. A non-nil result means the user
// declined or cancelled and the handler should return it as is.
func (t *ResourceGroupsTool) selectSubscription(ctx context.Context, call *Call, subs []azure.Subscription) (azure.Subscription, *domain.Result, error) {
	choices := make([]elicitation.Choice, len(subs))
	for i, s := range subs {
		label := fmt.Sprintf("%s (%s)", s.Name, s.ID)
		if s.IsDefault {
			label += " [default]"
		}
		choices[i] = elicitation.Choice{Value: s.ID, Label: label}
	}

	out, err := call.Elicit(ctx, elicitation.Request{
		Message:     fmt.Sprintf("%d Azure subscriptions are available. Which one should be used to list resource groups?", len(subs)),
		Field:       "subscription",
		Title:       "Subscription",
		Description: "Azure subscription to list resource groups for",
		Choices:     choices,
		Required:    true,
	})
	if err != nil {
		return azure.Subscription{}, nil, fmt.Errorf("subscription selection: %w", err)
	}

	switch out.State {
	case elicitation.Declined:
		return azure.Subscription{}, domain.TextResult("Subscription selection was declined. No resource groups were listed."), nil
	case elicitation.Cancelled:
		return azure.Subscription{}, domain.TextResult("Subscription selection was cancelled. No resource groups were listed."), nil
	}

	id := out.Value("subscription")
	for _, s := range subs {
		if s.ID == id {
			return s, nil, nil
		}
	}
	// accepted values are checked against the offered choices
	return azure.Subscription{ID: id, Name: id}, nil, nil
}
