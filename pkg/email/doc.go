// Package email delivers transactional messages such as one-time verification
// codes.
//
// Two senders implement the Sender interface:
//   - NewPostmarkSender delivers through Postmark with open and link tracking disabled
//   - NewFileSender writes .html, .txt and .json files to a directory for local development
//
// NewSender chooses between them based on Config.
//
//	sender, err := email.NewSender(email.Config{
//	    PostmarkServerToken: os.Getenv("POSTMARK_SERVER_TOKEN"),
//	    SenderEmail:         "noreply@example.com",
//	})
//	if err != nil {
//	    return err
//	}
//	err = sender.Send(ctx, email.Message{
//	    To:       "user@example.com",
//	    Subject:  "Your verification code",
//	    HTMLBody: html,
//	    TextBody: text,
//	})
//
// Message bodies are produced by the templates subpackage.
package email
