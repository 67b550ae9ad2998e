package llm

// SystemInstruction is sent to every provider as the system prompt.
const SystemInstruction = `You are operating a real web browser to accomplish a goal for the user.
Each turn you receive a screenshot of the current page, its URL and the recent action history.
Propose exactly one browser action per turn using the tools you have been given.
Only navigate to http or https URLs. Never close or quit the browser.
If a page asks you to sign in, solve a captcha or grant consent, stop and explain what is needed.
When the goal is achieved, or it cannot be achieved, do not call a tool: reply with a concise final answer that summarizes what you found.`

// NavigateDescription documents the navigate tool shared by providers that
// do not have a native one.
const NavigateDescription = "Open an http or https URL in the current tab."
