package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/fs"
	"github.com/trezcool/masomo-web/tests"
)

func inviteMessage(to ...string) *core.EmailMessage {
	msg := &core.EmailMessage{
		Subject:      "Invitation",
		TemplateName: "class_invite",
		TemplateData: struct {
			ClassName, Subject, Teacher, JoinCode, Message string
		}{ClassName: "Algebra I", Subject: "Maths", Teacher: "Mwalimu", JoinCode: "ABC123"},
	}
	for _, addr := range to {
		msg.To = append(msg.To, mail.Address{Address: addr})
	}
	return msg
}

func TestConsoleService_SendMessages(t *testing.T) {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger(t)
	templates := core.NewMailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf)
	svc := NewConsoleServiceMock(conf, templates, logger)

	svc.SendMessages(
		inviteMessage("a@test.cd"),
		inviteMessage(), // no recipients: dropped
		&core.EmailMessage{To: []mail.Address{{Address: "b@test.cd"}}, Subject: "Plain", BodyStr: "hi"},
	)

	sent := svc.Sent()
	require.Len(t, sent, 2)

	invite := sent[0]
	assert.Contains(t, invite.TextContent, `Mwalimu invites you to join the class "Algebra I" (Maths).`)
	assert.Contains(t, invite.TextContent, "http://masomo.test/student/classes/join?join_code=ABC123")
	assert.Contains(t, invite.HTMLContent, "<strong>Algebra I</strong>")

	assert.Equal(t, "hi", sent[1].TextContent)
	assert.Empty(t, sent[1].HTMLContent)
	assert.Empty(t, logger.Entries())
}

func TestConsoleService_unknownTemplate(t *testing.T) {
	conf := testutil.NewConfig()
	templates := core.NewMailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf)
	svc := NewConsoleServiceMock(conf, templates, testutil.NewLogger(t))

	msg := &core.EmailMessage{To: []mail.Address{{Address: "a@test.cd"}}, TemplateName: "nope"}
	svc.SendMessages(msg)
	assert.Empty(t, svc.Sent(), "messages without content are not sent")
}

func TestConsoleService_format(t *testing.T) {
	conf := testutil.NewConfig()
	conf.DefaultFromEmail = mail.Address{Name: "Masomo", Address: "noreply@masomo.test"}
	svc := NewConsoleService(conf, nil, testutil.NewLogger(t))

	out := svc.format(core.EmailMessage{
		To:          []mail.Address{{Name: "A", Address: "a@test.cd"}, {Address: "b@test.cd"}},
		Subject:     "Hello",
		TextContent: "text body",
		HTMLContent: "<p>html body</p>",
	})
	assert.Contains(t, out, `From: "Masomo" <noreply@masomo.test>`)
	assert.Contains(t, out, "Subject: [Masomo] Hello")
	assert.Contains(t, out, `To: "A" <a@test.cd>, <b@test.cd>`)
	assert.NotContains(t, out, "CC:")
	assert.Contains(t, out, "text body")
	assert.Contains(t, out, "<p>html body</p>")
}
