// ABOUTME: Notice key constants shared by the engine and the presentation layer
// ABOUTME: Every key must exist in all locale catalogs (enforced by tests)

package i18n

// Notice keys. The conversation engine emits these; the catalog renders them.
const (
	KeyAccessDenied      = "access_denied"
	KeyMenuNudge         = "menu_nudge"
	KeyAskName           = "ask_name"
	KeyAskNameInvalid    = "ask_name_invalid"
	KeyAskContact        = "ask_contact"
	KeyNotYourContact    = "not_your_contact"
	KeyRegistrationDone  = "registration_done"
	KeySetContentPrompt  = "set_content_prompt"
	KeyConfirmContent    = "confirm_content"
	KeyContentSaved      = "content_saved"
	KeyNoContent         = "no_content"
	KeyGroupPostPrompt   = "group_post_prompt"
	KeyConfirmGroupPost  = "confirm_group_post"
	KeyGroupPostSent     = "group_post_sent"
	KeyBroadcastPrompt   = "broadcast_prompt"
	KeyConfirmBroadcast  = "confirm_broadcast"
	KeyBroadcastDone     = "broadcast_done"
	KeyFeedbackPrompt    = "feedback_prompt"
	KeyFeedbackSent      = "feedback_sent"
	KeyFeedbackHeader    = "feedback_header"
	KeyResultAskName     = "result_ask_name"
	KeyResultAskGrammar  = "result_ask_grammar"
	KeyResultAskWordlist = "result_ask_wordlist"
	KeyResultInvalid     = "result_invalid_percent"
	KeyResultConfirm     = "result_confirm"
	KeyResultSaved       = "result_saved"
	KeyResultCanceled    = "result_canceled"
	KeyNoResults         = "no_results"
	KeyResultLine        = "result_line"
	KeyCanceled          = "canceled"
	KeyDialogOpened      = "dialog_opened"
	KeyDialogWait        = "dialog_wait"
	KeyDialogClosed      = "dialog_closed"
	KeyHelpRequest       = "help_request"
	KeyStudentCard       = "student_card"
	KeyForwardFailed     = "forward_failed"
	KeyGiftSent          = "gift_sent"
	KeyGiftPaid          = "gift_paid"
	KeyGiftFailed        = "gift_failed"
	KeyGiftTitle         = "gift_title"
	KeyGiftDescription   = "gift_description"
	KeyGiftLabel         = "gift_label"
	KeyLanguageChanged   = "language_changed"
	KeyPhonesTitle       = "phones_title"
	KeyPhonesEmpty       = "phones_empty"
	KeyPhoneLine         = "phone_line"
	KeyStats             = "stats"
)
