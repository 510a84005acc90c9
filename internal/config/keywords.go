package config

// DefaultConfirmationKeywords 表示申请已被接收的短语
func DefaultConfirmationKeywords() []string {
	return []string{
		"application received",
		"application submitted",
		"application confirmation",
		"submission received",
		"submission confirmed",
		"application acknowledgment",
		"application acknowledgement",

		"thanks for applying",
		"thank you for applying",
		"thanks for your application",
		"thank you for your application",
		"thanks for submitting",
		"thank you for submitting",
		"thank you for your interest",
		"thanks for your interest",

		"we received your application",
		"we've received your application",
		"we have received your application",
		"your application was received",
		"received your application for",
		"your application has been received",
		"application successfully received",

		"you successfully applied",
		"you've successfully applied",
		"successfully submitted",
		"application complete",
		"submission complete",
		"application was successful",

		"your application was sent",
		"application was sent",
		"your application has been sent",
		"application sent to",
		"forwarded your application",
		"application forwarded to",

		"we confirm your application",
		"this confirms your application",
		"confirming your application",
		"application on file",
		"your application to",
		"your application for the position",
		"your application for the role",

		"your profile has been submitted",
		"profile submitted successfully",
		"application in our system",
		"added to our candidate pool",
		"candidate profile received",

		"application is being reviewed",
		"we'll review your application",
		"reviewing your application",
		"thank you for your candidacy",

		"application has been submitted",
		"your profile has been shared",
		"profile shared with",
		"application delivered",
	}
}

// DefaultExclusionKeywords 表示测评、面试、拒信、offer 等状态更新的短语
func DefaultExclusionKeywords() []string {
	return []string{
		"regret to inform",
		"unfortunately",
		"not selected",
		"not moving forward",
		"moving forward with other candidates",
		"decided not to move forward",
		"position has been filled",
		"no longer considering",
		"will not be moving forward",

		"assessment",
		"coding challenge",
		"hackerrank",
		"codility",
		"codesignal",
		"phone screen scheduled",
		"interview scheduled",
		"interview invitation",
		"invitation to interview",

		"newsletter",
		"talent community",
		"talent network",
		"job alert",

		"background check",
		"offer letter",
		"employment offer",
		"salary negotiation",

		"survey",
		"feedback request",
	}
}
