package service

import (
	"fmt"

	"github.com/poolworks/identity/internal/identity/notify"
)

// Outbound email bodies. Plain fmt templates; the notifier owns delivery.

func recoveryCodeEmail(to, code string, minutes int) notify.Message {
	return notify.Message{
		To:      to,
		Subject: "Your account recovery code",
		HTML: fmt.Sprintf(
			`<p>A two-factor recovery was started for your account.</p>
<p>Your recovery code is: <b>%s</b></p>
<p>It expires in %d minutes. If you did not request this, contact your administrator immediately.</p>`,
			code, minutes),
	}
}

func recoveryAdminAlert(adminEmail, userEmail, requestID string) notify.Message {
	return notify.Message{
		To:      adminEmail,
		Subject: "2FA recovery started",
		HTML: fmt.Sprintf(
			`<p>A two-factor recovery flow was started for <b>%s</b> (request %s).</p>`,
			userEmail, requestID),
	}
}

func registrationReceivedEmail(to, fullName string) notify.Message {
	return notify.Message{
		To:      to,
		Subject: "Registration request received",
		HTML: fmt.Sprintf(
			`<p>Hi %s,</p><p>Your registration request has been received and is awaiting administrator review. You will hear from us once it has been decided.</p>`,
			fullName),
	}
}

func registrationAdminAlert(adminEmail, email, fullName, reason string) notify.Message {
	return notify.Message{
		To:      adminEmail,
		Subject: "New registration request",
		HTML: fmt.Sprintf(
			`<p>New registration request from <b>%s</b> (%s).</p><p>Reason: %s</p>`,
			fullName, email, reason),
	}
}

func credentialsEmail(to, username, password string) notify.Message {
	return notify.Message{
		To:      to,
		Subject: "Your account has been approved",
		HTML: fmt.Sprintf(
			`<p>Your account is ready.</p>
<p>Username: <b>%s</b><br>Temporary password: <b>%s</b></p>
<p>You will be asked to set up two-factor authentication on first login. Change your password immediately.</p>`,
			username, password),
	}
}

func rejectionEmail(to, reason string) notify.Message {
	return notify.Message{
		To:      to,
		Subject: "Registration request declined",
		HTML: fmt.Sprintf(
			`<p>Your registration request was declined.</p><p>Reason: %s</p>`,
			reason),
	}
}

func emergencyCodeEmail(adminEmail, newCode string) notify.Message {
	return notify.Message{
		To:      adminEmail,
		Subject: "New emergency access code",
		HTML: fmt.Sprintf(
			`<p>The emergency access code was used and has rotated.</p>
<p>The new code is: <b>%s</b></p>
<p>Store it offline. It will not be shown again.</p>`,
			newCode),
	}
}
