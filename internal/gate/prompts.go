package gate

import "fmt"

func websitePrompt(name, address string, cand SiteCandidate) string {
	return fmt.Sprintf(`You are verifying whether a web search result points to the official website of a specific business.

Business name: %s
Business address: %s

Search result under review:
Title: %s
URL: %s
Snippet: %s

Answer with only a JSON object: {"is_correct_website": true} or {"is_correct_website": false}.
The result must be the business's own site, not a directory, review platform, social profile, or a different business with a similar name.`,
		name, address, cand.Title, cand.URL, cand.Snippet)
}

func contactPrompt(name, pageText string) string {
	return fmt.Sprintf(`Extract contact details for the business %q from the page text below.

Page text:
%s

Answer with only a JSON object of the form:
{"phone": "...", "email": "...", "address": "..."}
Use null for any field not present on the page. Do not guess or invent values.`,
		name, pageText)
}

func entryPrompt(recordType, name, details string) string {
	return fmt.Sprintf(`You are validating a %s record before it enters a lead database.

Name: %s
Details: %s

Answer with only a JSON object: {"is_valid": true/false, "reason": "..."}.
A record is invalid when the name is not a real %s (e.g. a category label, a street, a fragment of scraped text).`,
		recordType, name, details, recordType)
}

func smartListPrompt(criteria, name, details string) string {
	return fmt.Sprintf(`You are deciding whether a business belongs on a curated list.

List criteria: %s

Business name: %s
Business details: %s

Answer with only a JSON object:
{"match": true/false, "category": "...", "justification": "..."}
Set category to the business's primary category and keep the justification to one sentence.`,
		criteria, name, details)
}

func reportPrompt(profile, name, pageText string) string {
	return fmt.Sprintf(`You are an analyst preparing an outreach report. Our company profile:
%s

Prospect business: %s

Their website text:
%s

Answer with only a JSON object:
{"identified_needs": ["..."], "outreach_strategy": ["..."], "critical_missing_info": "...", "website_analysis_notes": "...", "social_media_links": {"platform": "url"}}
Identify concrete needs our services could address and how to open the conversation.`,
		profile, name, pageText)
}
