package chatter

import (
	"fmt"
	"html"
	"strings"
)

const WELCOME_REPLY = `🎉 <b>Welcome to Catty Bills!</b>

I keep track of your bills and receipts.

📋 <b>Commands:</b>
/start - This message
/help - Help and instructions

📸 <b>How to use:</b>
1. Send a photo of a receipt
2. I store it and open a bill for it
3. Its items get categorized

Need help? Use /help`

const HELP_REPLY = `📚 <b>Help - Catty Bills</b>

🔹 <b>What I do:</b>
• Store bills and receipts
• Categorize products
• Index products across shops

🔹 <b>Sending a receipt:</b>
• Take a photo of the receipt
• Send it to me as a photo
• Wait for the confirmation

🔹 <b>Commands:</b>
/start - Welcome
/help - This help`

const ERROR_REPLY = `⚠️ <b>Something went wrong</b>

The message couldn't be processed.

🔄 <b>Try again or:</b>
• Use /help
• Contact the administrator`

func textReply(text string) string {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/start":
		return WELCOME_REPLY
	case "/help":
		return HELP_REPLY
	default:
		return fmt.Sprintf(`❓ <b>Unknown command</b>

You wrote: <code>%s</code>

📋 <b>Commands:</b>
/start - Welcome
/help - Help

📸 <b>You can also send a photo of a receipt!</b>`, html.EscapeString(text))
	}
}

func photoReceivedReply(caption string) string {
	var reply strings.Builder
	reply.WriteString("📸 <b>Photo received!</b>\n\n")
	if caption != "" {
		fmt.Fprintf(&reply, "<i>Caption: %s</i>\n\n", html.EscapeString(caption))
	}
	reply.WriteString("🔄 Downloading the photo...")
	return reply.String()
}

func photoStoredReply(name string, billID uint) string {
	return fmt.Sprintf("✅ <b>Photo saved!</b>\n\n📁 Stored as: <code>%s</code>\n🧾 Bill #%d is waiting for processing.", html.EscapeString(name), billID)
}
