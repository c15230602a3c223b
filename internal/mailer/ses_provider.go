package mailer

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESProvider implements EmailProvider via Amazon SES, for deployments that
// set MAILER_DRIVER=ses instead of running their own SMTP relay.
type SESProvider struct {
	client *ses.Client
	from   string
}

// NewSESProvider loads AWS credentials from the default chain (env vars,
// shared config, or the instance/task role) the way aws-sdk-go-v2's own
// examples do.
func NewSESProvider(ctx context.Context, region, from string) (*SESProvider, error) {
	if _, err := sanitizeEmailAddress(from); err != nil {
		return nil, fmt.Errorf("invalid From address: %w", err)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return &SESProvider{client: ses.NewFromConfig(cfg), from: from}, nil
}

func (p *SESProvider) Send(ctx context.Context, payload EmailPayload) (string, error) {
	toAddr, err := sanitizeEmailAddress(payload.To)
	if err != nil {
		return "", fmt.Errorf("invalid recipient address")
	}

	subject := (&SMTPProvider{}).getSubject(payload.Template)
	body := (&SMTPProvider{}).buildBody(payload)

	out, err := p.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: &p.from,
		Destination: &types.Destination{
			ToAddresses: []string{toAddr},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: &subject},
			Body: &types.Body{
				Text: &types.Content{Data: &body},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}

	return *out.MessageId, nil
}
