package utils

import (
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"
)

var (
	emailFrom     = os.Getenv("EMAIL_FROM")
	emailPassword = os.Getenv("EMAIL_PASSWORD")
	smtpHost      = os.Getenv("SMTP_HOST")
	smtpPort      = os.Getenv("SMTP_PORT")
	companyName   = "UniPool"
	baseURL       = os.Getenv("BASE_URL")
)

// Common header template for all emails
const emailHeader = `
<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; margin: 0; padding: 0;">
	<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
		<div style="text-align: center; margin-bottom: 30px; background-color: #f9f9f9; padding: 20px;">
			<h2 style="color: #4CAF50; margin: 0;">UniPool</h2>
		</div>
`

// Common footer template for all emails
const emailFooter = `
		<div style="text-align: center; margin-top: 20px; font-size: 12px; color: #666; border-top: 1px solid #eee; padding-top: 20px;">
			<p>This is an automated message, please do not reply to this email.</p>
			<p>© 2025 UniPool. All rights reserved.</p>
		</div>
	</div>
</body>
</html>
`

func sendEmail(to []string, subject, body string) error {
	if emailFrom == "" || emailPassword == "" || smtpHost == "" || smtpPort == "" {
		return fmt.Errorf("email configuration not set")
	}

	// Headers
	headers := make(map[string]string)
	headers["From"] = fmt.Sprintf("%s <%s>", companyName, emailFrom)
	headers["To"] = strings.Join(to, ",")
	headers["Subject"] = subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=UTF-8"

	// Build message
	message := ""
	for key, value := range headers {
		message += fmt.Sprintf("%s: %s\r\n", key, value)
	}
	message += "\r\n" + body

	// Authentication
	auth := smtp.PlainAuth("", emailFrom, emailPassword, smtpHost)

	// Send email
	err := smtp.SendMail(smtpHost+":"+smtpPort, auth, emailFrom, to, []byte(message))
	if err != nil {
		log.Printf("Failed to send email: %v", err)
		return err
	}

	log.Printf("Successfully sent email to recipients: %v", to)
	return nil
}

func SendNewBookingRequestEmail(driverEmail, riderName, day string) error {
	subject := "New Booking Request - UniPool"
	body := fmt.Sprintf(emailHeader+`
				<div style="background-color: #f9f9f9; padding: 20px; border-radius: 5px;">
					<h1 style="color: #2c3e50; text-align: center;">New Booking Request</h1>
					<p>Hello,</p>
					<p><strong>%s</strong> has requested a seat in your carpool for <strong>%s</strong>.</p>
					<p>Please log in to your UniPool account to approve or decline this request.</p>
					<div style="text-align: center; margin: 30px 0;">
						<a href="%s/login" style="background-color: #4CAF50; color: white; padding: 12px 25px; text-decoration: none; border-radius: 5px;">Login to UniPool</a>
					</div>
					<p>Best regards,<br>The UniPool Team</p>
				</div>`+emailFooter,
		riderName, day, baseURL)

	return sendEmail([]string{driverEmail}, subject, body)
}

func SendBookingApprovedEmail(riderEmail, driverName, carModel, day string) error {
	subject := "Booking Approved - UniPool"
	body := fmt.Sprintf(emailHeader+`
				<div style="background-color: #f9f9f9; padding: 20px; border-radius: 5px;">
					<h1 style="color: #2c3e50; text-align: center;">Booking Approved</h1>
					<p>Hello,</p>
					<p>Great news! <strong>%s</strong> has approved your seat for <strong>%s</strong> (Car: <strong>%s</strong>).</p>
					<p>You can now message your driver to arrange the pickup.</p>
					<div style="text-align: center; margin: 30px 0;">
						<a href="%s/login" style="background-color: #4CAF50; color: white; padding: 12px 25px; text-decoration: none; border-radius: 5px;">Open UniPool</a>
					</div>
					<p>Best regards,<br>The UniPool Team</p>
				</div>`+emailFooter,
		driverName, day, carModel, baseURL)

	return sendEmail([]string{riderEmail}, subject, body)
}

func SendBookingDeclinedEmail(riderEmail, day string) error {
	subject := "Booking Update - UniPool"
	body := fmt.Sprintf(emailHeader+`
				<div style="background-color: #f9f9f9; padding: 20px; border-radius: 5px;">
					<h1 style="color: #2c3e50; text-align: center;">Booking Declined</h1>
					<p>Hello,</p>
					<p>Unfortunately your booking request for <strong>%s</strong> was declined by the driver.</p>
					<p>Don't worry, there are other carpools heading your way.</p>
					<div style="text-align: center; margin: 30px 0;">
						<a href="%s/login" style="background-color: #4CAF50; color: white; padding: 12px 25px; text-decoration: none; border-radius: 5px;">Find Another Ride</a>
					</div>
					<p>Best regards,<br>The UniPool Team</p>
				</div>`+emailFooter,
		day, baseURL)

	return sendEmail([]string{riderEmail}, subject, body)
}
